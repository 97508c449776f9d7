// Package threshold provides a processor that binarizes images.
//
// Samples above the level become 255 and all others 0. With invert set the
// mapping is reversed. Anything other than an image on the input stops the
// operation with errors.ErrTypeMismatch.
package threshold
