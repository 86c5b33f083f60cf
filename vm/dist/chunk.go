// Package dist implements program transport for Nako4. A compiled program
// travels between a client and a server as a CBOR-encoded Chunk that also
// carries the source text it was compiled from.
package dist

import (
	"crypto/sha256"

	"github.com/nako4/nako4/vm"
)

// FormatVersion is the current chunk format version.
// Increment when making incompatible changes to Program or Chunk.
const FormatVersion uint16 = 1

// Chunk is the unit of program transport.
type Chunk struct {
	Version uint16      `cbor:"1,keyasint"`
	Hash    [32]byte    `cbor:"2,keyasint"` // sha256 of Source
	Source  string      `cbor:"3,keyasint"`
	Program *vm.Program `cbor:"4,keyasint"`
}

// NewChunk wraps a compiled program together with its source.
func NewChunk(source string, prog *vm.Program) *Chunk {
	return &Chunk{
		Version: FormatVersion,
		Hash:    HashSource(source),
		Source:  source,
		Program: prog,
	}
}

// HashSource returns the content hash used to identify a source text.
func HashSource(source string) [32]byte {
	return sha256.Sum256([]byte(source))
}
