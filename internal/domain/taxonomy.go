package domain

// Category taxonomy for the DRE report. A category belongs to exactly one
// transaction type; anything not listed is treated as revenue, matching the
// dashboard's mapping.
var categoryTypes = map[string]TransactionType{
	// Revenue
	"Mensalidades":        TypeRevenue,
	"Matrículas":          TypeRevenue,
	"Integral":            TypeRevenue,
	"Cursos Livres":       TypeRevenue,
	"Eventos Pedagógicos": TypeRevenue,
	"Venda de Uniformes":  TypeRevenue,
	"ISS":                 TypeRevenue,
	"PIS/COFINS":          TypeRevenue,
	"Simples Nacional":    TypeRevenue,

	// Variable costs
	"Salários Professores":   TypeVariableCost,
	"Encargos Profs":         TypeVariableCost,
	"Horas Extras Docentes":  TypeVariableCost,
	"Energia":                TypeVariableCost,
	"Água & Gás":             TypeVariableCost,
	"Alimentação Alunos":     TypeVariableCost,
	"Material de Consumo":    TypeVariableCost,

	// Fixed costs
	"Aluguel Imóveis":      TypeFixedCost,
	"IPTU":                 TypeFixedCost,
	"Seguros Patrimoniais": TypeFixedCost,
	"Limpeza":              TypeFixedCost,
	"Conservação Predial":  TypeFixedCost,
	"Jardinagem":           TypeFixedCost,

	// SG&A
	"Google Ads":         TypeSGA,
	"Redes Sociais":      TypeSGA,
	"Eventos Comerciais": TypeSGA,
	"Sistemas ERP":       TypeSGA,
	"Assessoria Jurídica": TypeSGA,
	"Consultoria":        TypeSGA,

	// Apportionment bucket
	"Rateio": TypeRateio,
}

// TypeForCategory maps a category to its transaction type. Unknown
// categories fall back to revenue.
func TypeForCategory(category string) TransactionType {
	if t, ok := categoryTypes[category]; ok {
		return t
	}
	return TypeRevenue
}
