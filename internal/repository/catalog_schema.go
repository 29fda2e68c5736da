package repository

// Field names of the product and product image collections.
const (
	FieldID          = "id"
	FieldGender      = "gender"
	FieldBaseColor   = "base_color"
	FieldSeason      = "season"
	FieldUsage       = "usage"
	FieldDisplayName = "display_name"
	FieldImageURL    = "image_url"
	FieldTextVector  = "text_vector"

	FieldProductID   = "product_id"
	FieldImageVector = "image_vector"
)

// ProductSchema returns the layout of the product collection, keyed by
// product id and searchable on the text embedding of its display name.
func ProductSchema(collection string, textDim int) CollectionSchema {
	return CollectionSchema{
		Name:           collection,
		Vectors:        map[string]int{FieldTextVector: textDim},
		IntegerIndexes: []string{FieldID},
	}
}

// ImageSchema returns the layout of the product image collection. Several
// images may point at one product.
func ImageSchema(collection string, jointDim int) CollectionSchema {
	return CollectionSchema{
		Name:           collection,
		Vectors:        map[string]int{FieldImageVector: jointDim},
		IntegerIndexes: []string{FieldProductID},
	}
}
