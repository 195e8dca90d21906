package transcoder

import "context"

type Encoding int

const (
	Binary Encoding = iota
	Text
)

// FileData is what the engine hands back for a file in its virtual filesystem.
type FileData struct {
	Data     []byte
	Encoding Encoding
}

// Engine is a stateful media conversion engine with its own file namespace.
// Filenames are flat; the namespace is shared by everyone holding the engine.
type Engine interface {
	Load(ctx context.Context) error
	WriteFile(name string, data []byte) error
	Exec(ctx context.Context, args ...string) error
	ReadFile(name string) (FileData, error)
	DeleteFile(name string) error
	Files() ([]string, error)
}
