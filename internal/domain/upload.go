package domain

import "io"

// Upload is a file chosen by the admin. Open is only called once the upload
// has passed type and size validation.
type Upload struct {
	Name     string
	MIMEType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}
