// Package voices is the catalog of prebuilt interviewer voices offered to
// clients. The IDs are the provider's prebuilt voice names.
package voices

type Voice struct {
	ID     string `json:"id"`
	NameEN string `json:"name_en"`
	NameBG string `json:"name_bg"`
	Gender string `json:"gender"`
}

// DefaultID is used when a client does not pick a voice.
const DefaultID = "Algieba"

var catalog = []Voice{
	{ID: "Algieba", NameEN: "George", NameBG: "Георги", Gender: "male"},
	{ID: "Kore", NameEN: "Victoria", NameBG: "Виктория", Gender: "female"},
	{ID: "Fenrir", NameEN: "Max", NameBG: "Макс", Gender: "male"},
	{ID: "Despina", NameEN: "Diana", NameBG: "Диана", Gender: "female"},
}

// Catalog returns the voices in display order.
func Catalog() []Voice {
	out := make([]Voice, len(catalog))
	copy(out, catalog)
	return out
}

// IsValid reports whether id names a catalog voice.
func IsValid(id string) bool {
	for _, v := range catalog {
		if v.ID == id {
			return true
		}
	}
	return false
}
