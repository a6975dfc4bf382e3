// Package artifact turns compiled bytecode into something the host can
// load: a standalone module file, or the runner executable with the module
// appended to it.
package artifact

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/ajkachnic/pbrain/core"
)

const (
	FormatVersion = 1
	MagicNumber   = 0x4E524250 // "PBRN"

	// Extension of a bare module file.
	ModuleExt = ".pbc"
)

// trailerMagic closes a bundled executable; it follows the payload length.
var trailerMagic = [8]byte{'p', 'b', 'r', 'a', 'i', 'n', 'x', 0}

const trailerSize = 8 + len(trailerMagic)

var (
	ErrBadMagic    = errors.New("not a pbrain module")
	ErrBadVersion  = errors.New("unsupported module version")
	ErrBadChecksum = errors.New("module checksum mismatch")
)

// Encode writes code as a module: magic, version, chunk count, the main chunk
// and one chunk per procedure, then a crc32 of everything before it.
func Encode(w io.Writer, code *core.Bytecode) error {
	var buf bytes.Buffer

	header := []uint32{MagicNumber, FormatVersion, uint32(len(code.Procedures))}
	for _, field := range header {
		if err := binary.Write(&buf, binary.LittleEndian, field); err != nil {
			return errors.Wrap(err, "failed to write header")
		}
	}

	if err := writeChunk(&buf, code.Main); err != nil {
		return errors.Wrap(err, "failed to write main chunk")
	}
	for i, proc := range code.Procedures {
		if err := writeChunk(&buf, proc); err != nil {
			return errors.Wrapf(err, "failed to write procedure %d", i)
		}
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	if err := binary.Write(&buf, binary.LittleEndian, sum); err != nil {
		return errors.Wrap(err, "failed to write checksum")
	}

	_, err := w.Write(buf.Bytes())
	return errors.Wrap(err, "failed to write module")
}

func writeChunk(w io.Writer, ins core.Instructions) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ins))); err != nil {
		return err
	}
	_, err := w.Write(ins)
	return err
}

func Decode(r io.Reader) (*core.Bytecode, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read module")
	}

	if len(data) < 16 {
		return nil, ErrBadMagic
	}

	body, tail := data[:len(data)-4], data[len(data)-4:]
	in := bytes.NewReader(body)

	var magic, version, count uint32
	for _, field := range []*uint32{&magic, &version, &count} {
		if err := binary.Read(in, binary.LittleEndian, field); err != nil {
			return nil, errors.Wrap(err, "failed to read header")
		}
	}

	if magic != MagicNumber {
		return nil, ErrBadMagic
	}
	if version != FormatVersion {
		return nil, errors.Wrapf(ErrBadVersion, "version %d", version)
	}
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(tail) {
		return nil, ErrBadChecksum
	}

	main, err := readChunk(in)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read main chunk")
	}

	procedures := make([]core.Instructions, 0, count)
	for i := uint32(0); i < count; i++ {
		proc, err := readChunk(in)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read procedure %d", i)
		}
		procedures = append(procedures, proc)
	}

	return &core.Bytecode{Main: main, Procedures: procedures}, nil
}

func readChunk(r *bytes.Reader) (core.Instructions, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}

	if int64(length) > int64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}

	ins := make(core.Instructions, length)
	if _, err := io.ReadFull(r, ins); err != nil {
		return nil, err
	}

	return ins, nil
}

// Bundle appends the encoded module and a trailer to runner. The runner
// finds the module again with Extract when it starts.
func Bundle(runner []byte, code *core.Bytecode) ([]byte, error) {
	var payload bytes.Buffer
	if err := Encode(&payload, code); err != nil {
		return nil, err
	}

	out := bytes.NewBuffer(make([]byte, 0, len(runner)+payload.Len()+trailerSize))
	out.Write(runner)
	out.Write(payload.Bytes())

	if err := binary.Write(out, binary.LittleEndian, uint64(payload.Len())); err != nil {
		return nil, errors.Wrap(err, "failed to write trailer")
	}
	out.Write(trailerMagic[:])

	return out.Bytes(), nil
}

// payloadSize returns the length of the bundled module at the end of an
// executable of the given size, or 0 if there is none.
func payloadSize(r io.ReaderAt, size int64) (int64, error) {
	if size < int64(trailerSize) {
		return 0, nil
	}

	trailer := make([]byte, trailerSize)
	if _, err := r.ReadAt(trailer, size-int64(trailerSize)); err != nil {
		return 0, errors.Wrap(err, "failed to read trailer")
	}

	if !bytes.Equal(trailer[8:], trailerMagic[:]) {
		return 0, nil
	}

	length := int64(binary.LittleEndian.Uint64(trailer[:8]))
	if length <= 0 || length > size-int64(trailerSize) {
		return 0, errors.New("corrupt bundle trailer")
	}

	return length, nil
}

// Extract returns the module bundled into executable, if any.
func Extract(r io.ReaderAt, size int64) (*core.Bytecode, bool, error) {
	length, err := payloadSize(r, size)
	if err != nil || length == 0 {
		return nil, false, err
	}

	start := size - int64(trailerSize) - length
	code, err := Decode(io.NewSectionReader(r, start, length))
	if err != nil {
		return nil, false, err
	}

	return code, true, nil
}

// ExtractFile opens path and looks for a bundled module.
func ExtractFile(path string) (*core.Bytecode, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to open executable")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to stat executable")
	}

	return Extract(f, info.Size())
}

// Runner returns the bytes of the running executable with any bundled
// module stripped, ready to have a new one appended.
func Runner() ([]byte, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "failed to locate runner")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read runner")
	}

	length, err := payloadSize(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	if length > 0 {
		data = data[:int64(len(data))-int64(trailerSize)-length]
	}

	return data, nil
}

// OutputName is the artifact name for input: its base name with the
// platform's executable extension.
func OutputName(input string) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	if name == "" {
		name = base
	}
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	if name == base {
		// an extensionless input would be overwritten by its own artifact
		return name + ".out"
	}

	return name
}

func WriteExecutable(path string, data []byte) error {
	return errors.Wrapf(os.WriteFile(path, data, 0o755), "failed to write %s", path)
}

func WriteModule(path string, code *core.Bytecode) error {
	var buf bytes.Buffer
	if err := Encode(&buf, code); err != nil {
		return err
	}

	return errors.Wrapf(os.WriteFile(path, buf.Bytes(), 0o644), "failed to write %s", path)
}

func ReadModule(path string) (*core.Bytecode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open module")
	}
	defer f.Close()

	return Decode(f)
}
