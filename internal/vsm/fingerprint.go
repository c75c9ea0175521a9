package vsm

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/cespare/xxhash/v2"
)

// Fingerprint summarises a corpus by URL and content. It is independent of
// document order and changes whenever a document is added, removed or
// edited.
func Fingerprint(corpus []model.Document) string {
	entries := make([]model.Document, len(corpus))
	copy(entries, corpus)
	sort.Slice(entries, func(i, j int) bool { return entries[i].URL < entries[j].URL })

	h := sha256.New()
	var buf [8]byte
	for _, d := range entries {
		h.Write([]byte(d.URL))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], xxhash.Sum64String(d.Text()))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
