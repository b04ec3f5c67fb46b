package calib

import "github.com/openefi/ecud/internal/errors"

const (
	// Blob format errors
	ErrVersionMismatch  = errors.ErrorCode("calib_version_mismatch")
	ErrChecksumMismatch = errors.ErrorCode("calib_checksum_mismatch")
	ErrTruncatedBlob    = errors.ErrorCode("calib_truncated_blob")
	ErrEncodeFailed     = errors.ErrorCode("calib_encode_failed")
	ErrDecodeFailed     = errors.ErrorCode("calib_decode_failed")

	// Storage errors
	ErrStorageAccess = errors.ErrorCode("calib_storage_access_failed")
)
