package api

import (
	"io"
	"mime/multipart"
)

type multipartWriter struct {
	*multipart.Writer
}

func newMultipartWriter(w io.Writer) multipartWriter {
	return multipartWriter{Writer: multipart.NewWriter(w)}
}

// WriteFile adds a file part with the given field name.
func (w multipartWriter) WriteFile(field, filename string, data []byte) error {
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}
