package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names reported by DetectEncoding.
const (
	EncodingUTF8        = "utf-8"
	EncodingUTF16       = "utf-16"
	EncodingWindows1252 = "windows-1252"
)

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectEncoding sniffs a text file. UTF-16 is recognized by its BOM; anything that is
// not valid UTF-8 is treated as Windows-1252, which also covers Latin-1 exports.
func DetectEncoding(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	head, err := r.Peek(2)
	if err != nil && err != io.EOF {
		return "", err
	}
	if bytes.Equal(head, bomUTF16LE) || bytes.Equal(head, bomUTF16BE) {
		return EncodingUTF16, nil
	}

	for {
		ch, size, err := r.ReadRune()
		if err == io.EOF {
			return EncodingUTF8, nil
		}
		if err != nil {
			return "", err
		}
		if ch == utf8.RuneError && size == 1 {
			return EncodingWindows1252, nil
		}
	}
}

func decoderFor(name string) (encoding.Encoding, error) {
	switch name {
	case EncodingUTF16:
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), nil
	case EncodingWindows1252:
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("no decoder for encoding %q", name)
	}
}

// TranscodeToUTF8 writes a UTF-8 copy of path into dir and returns its path.
// The caller removes the copy.
func TranscodeToUTF8(path, encodingName, dir string) (string, error) {
	enc, err := decoderFor(encodingName)
	if err != nil {
		return "", err
	}

	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp(dir, "reconcile-utf8-*.csv")
	if err != nil {
		return "", fmt.Errorf("create transcode file: %w", err)
	}

	if _, err := io.Copy(out, transform.NewReader(in, enc.NewDecoder())); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("transcode %s from %s: %w", path, encodingName, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}
