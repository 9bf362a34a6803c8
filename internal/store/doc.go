// Package store writes mirrored documents into a flat output directory.
package store
