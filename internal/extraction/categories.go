package extraction

// CategoryOther is the catch-all category unknown values are clamped to.
const CategoryOther = "Sonstiges"

// Categories is the closed set of expense categories, in display order.
var Categories = []string{
	"Büromaterial & Ausstattung",
	"Fahrtkosten (Kraftstoff & Parkplatz)",
	"Fahrtkosten (ÖPNV & Bahn)",
	"Verpflegung & Bewirtung",
	"Unterkunft & Reisen",
	"Software & Lizenzen",
	"Hardware & Elektronik",
	"Telekommunikation & Internet",
	"Marketing & Werbung",
	"Website & Online-Dienste",
	"Steuerberatung",
	"Rechtsberatung",
	"Versicherungen",
	"Miete & Nebenkosten",
	"Weiterbildung",
	CategoryOther,
}

var categorySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Categories))
	for _, c := range Categories {
		set[c] = struct{}{}
	}
	return set
}()

// IsCategory reports whether name is a member of Categories.
func IsCategory(name string) bool {
	_, ok := categorySet[name]
	return ok
}
