package fetcher

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// ErrUnsupportedArchive is returned for archive types that cannot be installed.
var ErrUnsupportedArchive = errors.New("unsupported archive format")

// ErrIllegalPath is returned for entries that would land outside the
// destination directory.
var ErrIllegalPath = errors.New("illegal path in archive")

// Extract unpacks archive into dest, choosing the format from the content
// rather than the file name. It returns the number of files written.
func Extract(ctx context.Context, archive, dest string) (int, error) {
	mtype, err := mimetype.DetectFile(archive)
	if err != nil {
		return 0, fmt.Errorf("detect archive type: %w", err)
	}

	switch {
	case is(mtype, "application/zip"):
		return extractZip(ctx, archive, dest)
	case is(mtype, "application/gzip"):
		return extractTar(ctx, archive, dest, func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		})
	case is(mtype, "application/x-bzip2"):
		return extractTar(ctx, archive, dest, func(r io.Reader) (io.Reader, error) {
			return bzip2.NewReader(r), nil
		})
	case is(mtype, "application/x-tar"):
		return extractTar(ctx, archive, dest, func(r io.Reader) (io.Reader, error) {
			return r, nil
		})
	default:
		return 0, fmt.Errorf("%w: %s (%s)", ErrUnsupportedArchive, filepath.Base(archive), mtype.String())
	}
}

// is matches m or any type it was derived from, so zip based formats still
// count as zip.
func is(m *mimetype.MIME, mime string) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(mime) {
			return true
		}
	}
	return false
}

// safeJoin rejects names escaping dest. A name resolving to dest itself, such
// as a leading "./" entry, is allowed.
func safeJoin(dest, name string) (string, error) {
	clean := filepath.Clean(dest)
	path := filepath.Join(clean, name)
	if path != clean && !strings.HasPrefix(path, clean+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrIllegalPath, name)
	}
	return path, nil
}

func extractZip(ctx context.Context, archive, dest string) (int, error) {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return 0, fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	count := 0
	for _, file := range reader.File {
		select {
		case <-ctx.Done():
			return count, fmt.Errorf("extraction cancelled: %w", ctx.Err())
		default:
		}

		path, err := safeJoin(dest, file.Name)
		if err != nil {
			return count, err
		}

		mode := file.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(path, 0o755); err != nil {
				return count, err
			}
			continue
		case mode&os.ModeSymlink != 0:
			target, err := readZipEntry(file)
			if err != nil {
				return count, err
			}
			if err := writeSymlink(dest, path, target); err != nil {
				return count, err
			}
			continue
		}

		src, err := file.Open()
		if err != nil {
			return count, fmt.Errorf("open %s: %w", file.Name, err)
		}
		err = writeFile(path, src, mode.Perm())
		src.Close()
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func readZipEntry(file *zip.File) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extractTar(ctx context.Context, archive, dest string, decompress func(io.Reader) (io.Reader, error)) (int, error) {
	f, err := os.Open(archive)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	r, err := decompress(f)
	if err != nil {
		return 0, fmt.Errorf("decompress archive: %w", err)
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	tr := tar.NewReader(r)
	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, fmt.Errorf("extraction cancelled: %w", ctx.Err())
		default:
		}

		header, err := tr.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("read tar: %w", err)
		}

		path, err := safeJoin(dest, header.Name)
		if err != nil {
			return count, err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0o755); err != nil {
				return count, err
			}
		case tar.TypeReg:
			if err := writeFile(path, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return count, err
			}
			count++
		case tar.TypeSymlink:
			if err := writeSymlink(dest, path, header.Linkname); err != nil {
				return count, err
			}
		}
	}
}

func writeFile(path string, src io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return dst.Close()
}

// writeSymlink creates a link whose target stays within dest.
func writeSymlink(dest, path, target string) error {
	if filepath.IsAbs(target) {
		return fmt.Errorf("%w: absolute link %s", ErrIllegalPath, target)
	}
	dir, err := filepath.Rel(filepath.Clean(dest), filepath.Dir(path))
	if err != nil {
		return err
	}
	resolved := filepath.Join(dir, target)
	if resolved == ".." || strings.HasPrefix(resolved, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("%w: link %s escapes destination", ErrIllegalPath, target)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.Symlink(target, path)
}
