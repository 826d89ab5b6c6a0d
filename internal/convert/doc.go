// Package convert is the input format shim that runs before each job pass.
//
// Drawings photographed on phones arrive as JPEG or HEIC. JPEGs are decoded
// with imaging (honouring EXIF orientation) and re-encoded as RGBA PNG; HEIC
// files are handed to heif-convert or sips. A PNG with the same stem always
// wins and the conversion is skipped. Anything else is logged as unsupported
// and left in the input directory untouched.
package convert
