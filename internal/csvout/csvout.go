// Package csvout writes decoded voltage readings as a single-column CSV file.
package csvout

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultHeader is the column title written before the readings
const DefaultHeader = "Voltage (0-1023)"

// Options controls the CSV layout
type Options struct {
	Header string
	// CRLF terminates rows with \r\n instead of \n
	CRLF bool
}

// Encode writes the header row followed by one base-10 value per row
func Encode(w io.Writer, values []int64, opts Options) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = opts.CRLF

	if err := cw.Write([]string{opts.Header}); err != nil {
		return err
	}
	row := make([]string, 1)
	for _, v := range values {
		row[0] = strconv.FormatInt(v, 10)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile replaces path with the encoded readings. The data goes to a
// temporary file in the same directory first, so a failed write leaves any
// previous file untouched.
func WriteFile(path string, values []int64, opts Options) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output file in %s: %w", dir, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, values, opts); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// ValidatePath checks that path can receive the output file: it must be
// non-empty, must not name a directory, and its parent directory must exist.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("output path is empty")
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return fmt.Errorf("output path %s is a directory", path)
	}
	dir := filepath.Dir(path)
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("output directory %s is not a directory", dir)
	}
	return nil
}
