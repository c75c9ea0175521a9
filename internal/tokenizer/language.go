package tokenizer

// Language is an ISO 639-1 code.
type Language string

const (
	English Language = "en"
	Spanish Language = "es"
	French  Language = "fr"
	German  Language = "de"
)

// Detector picks the stop-word language for a lower-cased word sequence.
type Detector interface {
	Detect(words []string) Language
}

// DetectorFunc adapts a plain function to Detector.
type DetectorFunc func(words []string) Language

func (f DetectorFunc) Detect(words []string) Language { return f(words) }

// StopWordDetector chooses the language whose stop-word list covers the most
// words. Ties and texts with no hits resolve to English.
type StopWordDetector struct {
	lists map[Language]map[string]struct{}
	order []Language
}

func NewStopWordDetector(lists map[Language]map[string]struct{}) *StopWordDetector {
	order := []Language{English, Spanish, French, German}
	for lang := range lists {
		known := false
		for _, l := range order {
			if l == lang {
				known = true
				break
			}
		}
		if !known {
			order = append(order, lang)
		}
	}
	return &StopWordDetector{lists: lists, order: order}
}

func (d *StopWordDetector) Detect(words []string) Language {
	best, bestHits := English, 0
	for _, lang := range d.order {
		list, ok := d.lists[lang]
		if !ok {
			continue
		}
		hits := 0
		for _, w := range words {
			if _, ok := list[w]; ok {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = lang, hits
		}
	}
	return best
}

func defaultStopWords() map[Language]map[string]struct{} {
	return map[Language]map[string]struct{}{
		English: toSet([]string{
			"about", "after", "again", "all", "also", "and", "any", "are", "because", "been",
			"before", "being", "between", "both", "but", "can", "could", "did", "does", "doing",
			"down", "during", "each", "few", "for", "from", "further", "get", "got", "had",
			"has", "have", "having", "her", "here", "hers", "herself", "him", "himself", "his",
			"how", "into", "its", "itself", "just", "let", "like", "make", "makes", "many",
			"may", "more", "most", "much", "must", "myself", "nor", "not", "now", "off",
			"once", "only", "other", "our", "ours", "ourselves", "out", "over", "own", "same",
			"she", "should", "some", "such", "than", "that", "the", "their", "theirs", "them",
			"themselves", "then", "there", "these", "they", "this", "those", "through", "too",
			"under", "until", "upon", "very", "was", "were", "what", "when", "where", "which",
			"while", "who", "whom", "why", "will", "with", "would", "you", "your", "yours",
			"yourself", "yourselves",
		}),
		Spanish: toSet([]string{
			"algo", "ante", "como", "con", "contra", "cual", "cuando", "del", "desde", "donde",
			"durante", "ella", "ellas", "ellos", "entre", "era", "eres", "esa", "esas", "ese",
			"eso", "esos", "esta", "estas", "este", "esto", "estos", "hay", "las", "los",
			"mas", "mucho", "muy", "nada", "nos", "nosotros", "otra", "otro", "para", "pero",
			"poco", "por", "porque", "que", "quien", "ser", "sin", "sobre", "son", "sus",
			"también", "tiene", "todo", "una", "uno", "unos", "usted", "yo",
		}),
		French: toSet([]string{
			"aux", "avec", "ces", "cette", "dans", "des", "elle", "elles", "est", "eux",
			"ils", "leur", "leurs", "lui", "mais", "mes", "moi", "mon", "même", "nos",
			"notre", "nous", "par", "pas", "pour", "qui", "que", "quoi", "sans", "ses",
			"son", "sont", "sur", "toi", "ton", "tous", "tout", "une", "vos", "votre", "vous",
		}),
		German: toSet([]string{
			"aber", "alle", "als", "auch", "auf", "aus", "bei", "bin", "bis", "das",
			"dass", "dem", "den", "der", "des", "die", "doch", "ein", "eine", "einem",
			"einen", "einer", "für", "hat", "ich", "ihr", "ist", "mit", "nach", "nicht",
			"noch", "oder", "sich", "sie", "sind", "und", "uns", "von", "vor", "war",
			"was", "wie", "wir", "zum", "zur",
		}),
	}
}
