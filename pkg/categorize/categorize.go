// Package categorize assigns spending categories to transactions by merchant.
package categorize

import (
	"regexp"
	"strings"

	"github.com/ArionMiles/finanzas/pkg/api"
)

// Categories.
const (
	Mercado         = "mercado"
	Restaurantes    = "restaurantes"
	Transporte      = "transporte"
	Entretenimiento = "entretenimiento"
	Salud           = "salud"
	Educacion       = "educacion"
	Hogar           = "hogar"
	Ropa            = "ropa"
	Suscripciones   = "suscripciones"
	Transferencias  = "transferencias"
	Retiros         = "retiros"
	Servicios       = "servicios"
	Otros           = "otros"
)

type rule struct {
	category string
	pattern  *regexp.Regexp
}

// keywords must start at a word boundary, so "ara" matches "ARA CALLE 80"
// but not "CARULLA".
func keywords(category string, words ...string) rule {
	return rule{
		category: category,
		pattern:  regexp.MustCompile(`(?i)(?:^|[^\p{L}\d])(?:` + strings.Join(words, "|") + `)`),
	}
}

// defaultRules are checked in order; the first match wins.
var defaultRules = []rule{
	keywords(Mercado, "exito", "carulla", "jumbo", "olimpica", "d1", "ara", "metro", "alkosto", "makro", "surtimax"),
	keywords(Restaurantes, "rappi", "ifood", "domicilios", "restaurant", "burguer", "pizza", "sushi", "comida", "cafe",
		"starbucks", "juan valdez", "crepes", "wok", "frisby", "kokoriko", "el corral", "mcdonalds", "subway"),
	keywords(Transporte, "uber", "didi", "beat", "cabify", "indriver", "gasolina", "terpel", "texaco", "mobil", "primax",
		"parqueadero", "peaje"),
	keywords(Entretenimiento, "netflix", "spotify", "disney", "hbo", "amazon prime", "youtube", "cine", "procinal",
		"cinemark", "teatro", "concierto"),
	keywords(Salud, "farmacia", "drogueria", "cruz verde", "colsubsidio", "cafam", "medico", "hospital", "clinica", "eps",
		"salud", "optica"),
	keywords(Educacion, "universidad", "colegio", "jardin infantil", "icetex", "academia", "instituto", "matricula",
		"platzi", "udemy", "coursera", "duolingo", "libreria", "panamericana"),
	keywords(Suscripciones, "suscripcion", "membresia", "icloud", "apple\\.com", "google one", "microsoft", "openai",
		"chatgpt", "adobe", "smart ?fit", "bodytech", "patreon"),
	keywords(Hogar, "homecenter", "easy", "falabella", "ikea", "tug[oó]", "muebles", "decoracion", "ferreteria", "epm",
		"gas natural", "acueducto", "energia"),
	keywords(Servicios, "claro", "movistar", "tigo", "etb", "virgin", "wom", "internet", "celular",
		"empresa de telecomunicaciones"),
	keywords(Ropa, "zara", "h&m", "pull.*bear", "bershka", "tennis", "adidas", "nike", "arturo calle", "studio f", "ela",
		"offcorss"),
	keywords(Retiros, "retiro", "cajero", "atm"),
	keywords(Transferencias, "transferencia", "nequi", "daviplata", "pse"),
}

// Categorizer assigns categories using label overrides first and keyword
// rules second. It is safe for concurrent use.
type Categorizer struct {
	labels api.Labels
	rules  []rule
}

// New creates a categorizer. Labels map exact merchant names to a category
// and take precedence over the keyword rules.
func New(labels api.Labels) *Categorizer {
	folded := make(api.Labels, len(labels))
	for merchant, category := range labels {
		folded[strings.ToUpper(strings.TrimSpace(merchant))] = category
	}
	return &Categorizer{labels: folded, rules: defaultRules}
}

// Category returns the category for a transaction.
func (c *Categorizer) Category(txn *api.Transaction) string {
	if category := c.labels.LabelLookup(strings.ToUpper(strings.TrimSpace(txn.Merchant))); category != "" {
		return category
	}
	for _, r := range c.rules {
		if r.pattern.MatchString(txn.Merchant) {
			return r.category
		}
	}
	if txn.Type == api.TypeTransfer {
		return Transferencias
	}
	return Otros
}

// Apply sets txn.Category unless it is already set.
func (c *Categorizer) Apply(txn *api.Transaction) {
	if txn.Category == "" {
		txn.Category = c.Category(txn)
	}
}
