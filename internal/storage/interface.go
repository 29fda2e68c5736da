package storage

import "context"

// ImageStore keeps preprocessed product images addressable by product id.
type ImageStore interface {
	// PutImage stores the PNG for a product unless one is already stored and
	// returns the URL the image is served from.
	PutImage(ctx context.Context, productID int64, png []byte) (string, error)

	// ImageURL returns the URL a product's image is served from.
	ImageURL(productID int64) string
}
