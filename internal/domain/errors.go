package domain

import "errors"

var (
	ErrInvalidFileType    = errors.New("invalid file type")
	ErrFileTooLarge       = errors.New("file too large")
	ErrRead               = errors.New("failed to read file")
	ErrCropEncode         = errors.New("failed to encode cropped image")
	ErrStorageUnavailable = errors.New("local storage unavailable")
	ErrRemoteUnavailable  = errors.New("remote mirror unavailable")
)
