package imaging

import (
	"errors"
	"io"
)

// File is one picked upload.
type File struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FileError records why one file of a batch was dropped.
type FileError struct {
	Index int
	Name  string
	Err   error
}

func (e FileError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

// Batch is the outcome of PreprocessAll: usable images in input order plus per-file failures.
type Batch struct {
	Results []Result
	Errors  []FileError
}

// PreprocessAll runs Preprocess on every file. A failing file is dropped and
// reported without affecting its siblings.
func PreprocessAll(files []File, opts Options) Batch {
	batch := Batch{Results: make([]Result, 0, len(files))}
	for i, f := range files {
		res, err := preprocessFile(f, opts)
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) && decodeErr.Name == "" {
				decodeErr.Name = f.Name
			}
			batch.Errors = append(batch.Errors, FileError{Index: i, Name: f.Name, Err: err})
			continue
		}
		res.Name = f.Name
		batch.Results = append(batch.Results, res)
	}
	return batch
}

func preprocessFile(f File, opts Options) (Result, error) {
	rc, err := f.Open()
	if err != nil {
		return Result{}, err
	}
	defer rc.Close()
	return Preprocess(rc, opts)
}
