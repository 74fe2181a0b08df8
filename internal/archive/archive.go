// Package archive packages a collector dump into the gzip-compressed tar
// consumed by the chart renderer.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
)

const (
	// HeaderName is the header entry, also the header file name in a dump.
	HeaderName = "header"
	// DmesgName is the kernel log entry, present only for init-mode archives.
	DmesgName = "dmesg"
)

// Options describes one archive.
type Options struct {
	// DumpDir holds the collector's *.log files and optional header.
	DumpDir string
	// ProfileHeader is an optional header file appended to the dump header.
	ProfileHeader string
	// IncludeDmesg adds a dmesg entry with the Dmesg content, even when empty.
	IncludeDmesg bool
	Dmesg        []byte
	Destination  string
}

// Result summarizes a written archive.
type Result struct {
	Destination string
	Entries     []string
	Bytes       int64
}

// Entry is one file read back from an archive.
type Entry struct {
	Name string
	Data []byte
}

// Build writes the archive to a temporary file next to the destination and
// renames it into place.
func Build(opts Options) (res Result, err error) {
	logs, err := filepath.Glob(filepath.Join(opts.DumpDir, "*.log"))
	if err != nil {
		return res, err
	}
	sort.Strings(logs)

	header, err := mergeHeaders(filepath.Join(opts.DumpDir, HeaderName), opts.ProfileHeader)
	if err != nil {
		return res, err
	}

	dir := filepath.Dir(opts.Destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, err
	}
	tmp, err := os.CreateTemp(dir, ".bootchart-*.tgz")
	if err != nil {
		return res, err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	gz, err := gzip.NewWriterLevel(tmp, gzip.BestCompression)
	if err != nil {
		return res, err
	}
	tw := tar.NewWriter(gz)
	now := time.Now()

	if header != nil {
		if err := writeBytes(tw, HeaderName, header, now); err != nil {
			return res, err
		}
		res.Entries = append(res.Entries, HeaderName)
	}
	if opts.IncludeDmesg {
		if err := writeBytes(tw, DmesgName, opts.Dmesg, now); err != nil {
			return res, err
		}
		res.Entries = append(res.Entries, DmesgName)
	}
	for _, path := range logs {
		if err := writeFile(tw, path); err != nil {
			return res, err
		}
		res.Entries = append(res.Entries, filepath.Base(path))
	}

	if err := tw.Close(); err != nil {
		return res, fmt.Errorf("close tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return res, fmt.Errorf("close gzip stream: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return res, err
	}
	if err := tmp.Close(); err != nil {
		return res, err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return res, err
	}
	if err := os.Rename(tmp.Name(), opts.Destination); err != nil {
		return res, err
	}

	res.Destination = opts.Destination
	res.Bytes = info.Size()
	return res, nil
}

// mergeHeaders concatenates the dump header and the profile header. It
// returns nil when neither exists.
func mergeHeaders(paths ...string) ([]byte, error) {
	var out []byte
	found := false
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		found = true
		if len(out) > 0 && out[len(out)-1] != '\n' {
			out = append(out, '\n')
		}
		out = append(out, data...)
	}
	if !found {
		return nil, nil
	}
	return out, nil
}

func writeBytes(tw *tar.Writer, name string, data []byte, mtime time.Time) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  mtime,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func writeFile(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// Read returns every entry of an archive, in order.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var entries []Entry
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: hdr.Name, Data: buf.Bytes()})
	}
}
