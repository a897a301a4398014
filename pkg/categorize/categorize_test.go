package categorize

import (
	"sync"
	"testing"

	"github.com/ArionMiles/finanzas/pkg/api"
)

func TestCategory(t *testing.T) {
	tests := []struct {
		merchant string
		txnType  api.Type
		want     string
	}{
		{"EXITO", api.TypeExpense, Mercado},
		{"ARA CALLE 80", api.TypeExpense, Mercado},
		{"D1 CHAPINERO", api.TypeExpense, Mercado},
		{"RAPPI COLOMBIA", api.TypeExpense, Restaurantes},
		{"Juan Valdez Cafe", api.TypeExpense, Restaurantes},
		{"UBER TRIP", api.TypeExpense, Transporte},
		{"EDS TERPEL", api.TypeExpense, Transporte},
		{"NETFLIX", api.TypeExpense, Entretenimiento},
		{"DROGUERIAS CAFAM", api.TypeExpense, Salud},
		{"UNIVERSIDAD DE LOS ANDES", api.TypeExpense, Educacion},
		{"PLATZI.COM", api.TypeExpense, Educacion},
		{"LIBRERIA NACIONAL", api.TypeExpense, Educacion},
		{"APPLE.COM/BILL", api.TypeExpense, Suscripciones},
		{"OPENAI *CHATGPT SUBSCR", api.TypeExpense, Suscripciones},
		{"SMARTFIT CEDRITOS", api.TypeExpense, Suscripciones},
		{"MICROSOFT*365", api.TypeExpense, Suscripciones},
		{"HOMECENTER", api.TypeExpense, Hogar},
		{"Tugó", api.TypeExpense, Hogar},
		{"EMPRESA DE TELECOMUNICACIONES", api.TypeTransfer, Servicios},
		{"CLARO COLOMBIA", api.TypeExpense, Servicios},
		{"PULL AND BEAR", api.TypeExpense, Ropa},
		{"CAJERO CENTRO", api.TypeExpense, Retiros},
		{"NEQUI", api.TypeTransfer, Transferencias},
		{"Juana Uribe Henao", api.TypeTransfer, Transferencias},
		{"Transfer", api.TypeTransfer, Transferencias},
		{"CARULLA", api.TypeExpense, Mercado},
		{"PANADERIA LA 80", api.TypeExpense, Otros},
		{"Unknown", api.TypeExpense, Otros},
		{"BAVARIA & CIA S", api.TypeIncome, Otros},
	}

	c := New(nil)
	for _, tc := range tests {
		t.Run(tc.merchant, func(t *testing.T) {
			got := c.Category(&api.Transaction{Merchant: tc.merchant, Type: tc.txnType})
			if got != tc.want {
				t.Errorf("Category(%q): got %q, want %q", tc.merchant, got, tc.want)
			}
		})
	}
}

func TestCategory_Labels(t *testing.T) {
	c := New(api.Labels{
		"RAPPI COLOMBIA": "domicilios",
		"veronica jimeno": "familia",
	})

	tests := []struct {
		merchant string
		want     string
	}{
		{"RAPPI COLOMBIA", "domicilios"},
		{"Veronica Jimeno", "familia"},
		{"RAPPI", Restaurantes},
	}

	for _, tc := range tests {
		t.Run(tc.merchant, func(t *testing.T) {
			got := c.Category(&api.Transaction{Merchant: tc.merchant, Type: api.TypeExpense})
			if got != tc.want {
				t.Errorf("Category(%q): got %q, want %q", tc.merchant, got, tc.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	c := New(nil)

	txn := &api.Transaction{Merchant: "EXITO", Type: api.TypeExpense}
	c.Apply(txn)
	if txn.Category != Mercado {
		t.Errorf("Apply: got %q, want %q", txn.Category, Mercado)
	}

	preset := &api.Transaction{Merchant: "EXITO", Type: api.TypeExpense, Category: "regalos"}
	c.Apply(preset)
	if preset.Category != "regalos" {
		t.Errorf("Apply: overwrote category, got %q", preset.Category)
	}
}

func TestCategory_Concurrent(t *testing.T) {
	c := New(api.Labels{"EXITO": "mercado"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := c.Category(&api.Transaction{Merchant: "EXITO"}); got != Mercado {
					t.Errorf("Category: got %q, want %q", got, Mercado)
					return
				}
			}
		}()
	}
	wg.Wait()
}
