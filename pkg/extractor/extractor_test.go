package extractor

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/finanzas/pkg/api"
)

const (
	bancolombiaSender = "Bancolombia <alertasynotificaciones@bancolombia.com.co>"
	nubankSender      = "Nu Colombia <todomundopuede@nu.com.co>"
)

func TestExtract_Fixtures(t *testing.T) {
	tests := []struct {
		name         string
		from         string
		file         string
		wantAmount   string
		wantMerchant string
		wantBank     api.Bank
		wantType     api.Type
	}{
		{
			name:         "bancolombia purchase",
			from:         bancolombiaSender,
			file:         "bancolombia_compra.txt",
			wantAmount:   "51850",
			wantMerchant: "RAPPI COLOMBIA",
			wantBank:     api.BankBancolombia,
			wantType:     api.TypeExpense,
		},
		{
			name:         "bancolombia transfer by button",
			from:         bancolombiaSender,
			file:         "bancolombia_transferencia_boton.txt",
			wantAmount:   "92900",
			wantMerchant: "EMPRESA DE TELECOMUNICACIONES",
			wantBank:     api.BankBancolombia,
			wantType:     api.TypeTransfer,
		},
		{
			name:         "bancolombia transfer to key",
			from:         bancolombiaSender,
			file:         "bancolombia_transferencia_llave.txt",
			wantAmount:   "520000",
			wantMerchant: "Juana Uribe Henao",
			wantBank:     api.BankBancolombia,
			wantType:     api.TypeTransfer,
		},
		{
			name:         "bancolombia payroll",
			from:         bancolombiaSender,
			file:         "bancolombia_nomina.txt",
			wantAmount:   "9652805",
			wantMerchant: "BAVARIA & CIA S",
			wantBank:     api.BankBancolombia,
			wantType:     api.TypeIncome,
		},
		{
			name:         "nubank purchase",
			from:         nubankSender,
			file:         "nubank_compra.txt",
			wantAmount:   "50000",
			wantMerchant: "EXITO",
			wantBank:     api.BankNubank,
			wantType:     api.TypeExpense,
		},
	}

	ex := Default()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := loadFixture(t, tc.file)

			txn, err := ex.Extract(api.RawEmail{ID: tc.file, From: tc.from, Body: body})
			if err != nil {
				t.Fatalf("Extract: unexpected error %v", err)
			}

			if want := decimal.RequireFromString(tc.wantAmount); !txn.Amount.Equal(want) {
				t.Errorf("amount: got %s, want %s", txn.Amount, want)
			}
			if txn.Merchant != tc.wantMerchant {
				t.Errorf("merchant: got %q, want %q", txn.Merchant, tc.wantMerchant)
			}
			if txn.Bank != tc.wantBank {
				t.Errorf("bank: got %q, want %q", txn.Bank, tc.wantBank)
			}
			if txn.Type != tc.wantType {
				t.Errorf("type: got %q, want %q", txn.Type, tc.wantType)
			}
			if txn.Currency != api.CurrencyCOP {
				t.Errorf("currency: got %q, want %q", txn.Currency, api.CurrencyCOP)
			}
			if txn.SourceID != tc.file {
				t.Errorf("source id: got %q, want %q", txn.SourceID, tc.file)
			}
		})
	}
}

func TestExtract_Inline(t *testing.T) {
	tests := []struct {
		name         string
		from         string
		body         string
		wantAmount   string
		wantMerchant string
		wantType     api.Type
	}{
		{
			name:         "purchase with card marker",
			from:         "alertasynotificaciones@bancolombia.com.co",
			body:         "Compraste $51.850,00 en RAPPI COLOMBIA*DL con tu T.Deb *0970",
			wantAmount:   "51850",
			wantMerchant: "RAPPI COLOMBIA",
			wantType:     api.TypeExpense,
		},
		{
			name:         "incoming transfer",
			from:         "alertasynotificaciones@bancolombia.com.co",
			body:         "Recibiste una transferencia por $3,000,000 de VERONICA JIMENO",
			wantAmount:   "3000000",
			wantMerchant: "VERONICA JIMENO",
			wantType:     api.TypeIncome,
		},
		{
			name:         "transfer without recipient",
			from:         "alertasynotificaciones@bancolombia.com.co",
			body:         "Transferiste $10.000 desde tu cuenta *1234",
			wantAmount:   "10000",
			wantMerchant: MerchantTransfer,
			wantType:     api.TypeTransfer,
		},
		{
			name:         "transfer to plain recipient",
			from:         "alertasynotificaciones@bancolombia.com.co",
			body:         "Transferiste $50.000 a PEDRO PEREZ. Recibiste puntos por usar tu cuenta.",
			wantAmount:   "50000",
			wantMerchant: "PEDRO PEREZ",
			wantType:     api.TypeTransfer,
		},
		{
			name:         "income without sender",
			from:         "notificaciones@bancolombia.com.co",
			body:         "Recibiste $200.000 en tu cuenta",
			wantAmount:   "200000",
			wantMerchant: MerchantIncome,
			wantType:     api.TypeIncome,
		},
		{
			name:         "payment without merchant",
			from:         "alertasynotificaciones@bancolombia.com.co",
			body:         "Pagaste $35.000,00 con tu tarjeta",
			wantAmount:   "35000",
			wantMerchant: MerchantUnknown,
			wantType:     api.TypeExpense,
		},
		{
			name:         "withdrawal is an expense",
			from:         "alertasynotificaciones@bancolombia.com.co",
			body:         "Retiraste $300.000 en CAJERO CENTRO el 02/02/2024",
			wantAmount:   "300000",
			wantMerchant: "CAJERO CENTRO",
			wantType:     api.TypeExpense,
		},
		{
			name:         "nubank scenario",
			from:         "todomundopuede@nu.com.co",
			body:         "Compra aprobada por $50.000 en EXITO",
			wantAmount:   "50000",
			wantMerchant: "EXITO",
			wantType:     api.TypeExpense,
		},
		{
			name:         "nubank withdrawal without merchant",
			from:         "nu@nu.com.co",
			body:         "Retiro por $100.000",
			wantAmount:   "100000",
			wantMerchant: MerchantUnknown,
			wantType:     api.TypeExpense,
		},
		{
			name:         "transfer amount ends the sentence",
			from:         "alertasynotificaciones@bancolombia.com.co",
			body:         "Transferiste $92,900.00.",
			wantAmount:   "92900",
			wantMerchant: MerchantTransfer,
			wantType:     api.TypeTransfer,
		},
		{
			name:         "income amount ends the sentence",
			from:         "alertasynotificaciones@bancolombia.com.co",
			body:         "Recibiste una transferencia por $3,000,000.00.",
			wantAmount:   "3000000",
			wantMerchant: MerchantIncome,
			wantType:     api.TypeIncome,
		},
		{
			name:         "payment followed by period",
			from:         "alertasynotificaciones@bancolombia.com.co",
			body:         "Pagaste $120,500.00. Gracias por usar tu tarjeta",
			wantAmount:   "120500",
			wantMerchant: MerchantUnknown,
			wantType:     api.TypeExpense,
		},
		{
			name:         "purchase followed by comma",
			from:         "alertasynotificaciones@bancolombia.com.co",
			body:         "Compraste $51.850,00, en EXITO con tu T.Deb *0970",
			wantAmount:   "51850",
			wantMerchant: "EXITO",
			wantType:     api.TypeExpense,
		},
		{
			name:         "nubank amount followed by period",
			from:         "todomundopuede@nu.com.co",
			body:         "Compra aprobada por $50.000.",
			wantAmount:   "50000",
			wantMerchant: MerchantUnknown,
			wantType:     api.TypeExpense,
		},
		{
			name:         "nubank decimal comma",
			from:         "alertas@nu.com.co",
			body:         "Pago de $12.500,50 a NETFLIX por tu tarjeta",
			wantAmount:   "12500.5",
			wantMerchant: "NETFLIX",
			wantType:     api.TypeExpense,
		},
	}

	ex := Default()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			txn, err := ex.Extract(api.RawEmail{ID: "m1", From: tc.from, Body: tc.body})
			if err != nil {
				t.Fatalf("Extract: unexpected error %v", err)
			}
			if want := decimal.RequireFromString(tc.wantAmount); !txn.Amount.Equal(want) {
				t.Errorf("amount: got %s, want %s", txn.Amount, want)
			}
			if txn.Merchant != tc.wantMerchant {
				t.Errorf("merchant: got %q, want %q", txn.Merchant, tc.wantMerchant)
			}
			if txn.Type != tc.wantType {
				t.Errorf("type: got %q, want %q", txn.Type, tc.wantType)
			}
		})
	}
}

func TestExtract_NoTransaction(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		body    string
		wantErr error
	}{
		{"unknown sender", "promos@tienda.com", "Compraste $10.000 en TIENDA", ErrUnrecognizedSender},
		{"empty sender", "", "Compraste $10.000 en TIENDA", ErrUnrecognizedSender},
		{"no pattern", bancolombiaSender, "Tu clave principal fue actualizada", ErrNoPatternMatch},
		{"nubank no pattern", nubankSender, "Tu extracto ya esta disponible", ErrNoPatternMatch},
		{"zero amount", bancolombiaSender, "Compraste $0 en TIENDA", ErrInvalidAmount},
		{"zero transfer", bancolombiaSender, "Transferiste $0,00 a PEDRO", ErrInvalidAmount},
		{"separators only", bancolombiaSender, "Compraste $., en TIENDA", ErrNoPatternMatch},
		{"nubank zero", nubankSender, "Compra aprobada por $0 en EXITO", ErrInvalidAmount},
		{"income without amount", bancolombiaSender, "Recibiste un mensaje de seguridad", ErrNoPatternMatch},
	}

	ex := Default()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			txn, err := ex.Extract(api.RawEmail{ID: "m1", From: tc.from, Body: tc.body})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Extract: got error %v, want %v", err, tc.wantErr)
			}
			if txn != nil {
				t.Errorf("Extract: got transaction %+v, want nil", txn)
			}
		})
	}
}

func TestExtract_SnippetFallback(t *testing.T) {
	email := api.RawEmail{
		ID:      "m1",
		From:    bancolombiaSender,
		Snippet: "Compraste $20.000,00 en PANADERIA LA 80 con tu T.Cred *1111",
	}

	txn, err := Default().Extract(email)
	if err != nil {
		t.Fatalf("Extract: unexpected error %v", err)
	}
	if txn.Merchant != "PANADERIA LA 80" {
		t.Errorf("merchant: got %q, want %q", txn.Merchant, "PANADERIA LA 80")
	}
}

func TestExtract_OccurredAt(t *testing.T) {
	received := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	want := time.Date(2024, 3, 13, 1, 15, 0, 0, time.UTC)

	tests := []struct {
		name string
		date string
		want time.Time
	}{
		{"rfc5322", "Tue, 12 Mar 2024 20:15:00 -0500", want},
		{"rfc3339", "2024-03-12T20:15:00-05:00", want},
		{"unparseable", "ayer", received},
		{"empty", "", received},
	}

	ex := Default()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			txn, err := ex.Extract(api.RawEmail{
				ID:         "m1",
				From:       bancolombiaSender,
				Date:       tc.date,
				Body:       "Compraste $1.000 en TIENDA",
				ReceivedAt: received,
			})
			if err != nil {
				t.Fatalf("Extract: unexpected error %v", err)
			}
			if !txn.OccurredAt.Equal(tc.want) {
				t.Errorf("occurred at: got %v, want %v", txn.OccurredAt, tc.want)
			}
			if txn.OccurredAt.Location() != time.UTC {
				t.Errorf("occurred at: got location %v, want UTC", txn.OccurredAt.Location())
			}
		})
	}
}

func TestExtract_Excerpt(t *testing.T) {
	body := "Compraste $1.000 en TIENDA\n" + strings.Repeat("ñ", 2*ExcerptLength)

	txn, err := Default().Extract(api.RawEmail{ID: "m1", From: bancolombiaSender, Body: body})
	if err != nil {
		t.Fatalf("Extract: unexpected error %v", err)
	}
	if n := utf8.RuneCountInString(txn.RawExcerpt); n != ExcerptLength {
		t.Errorf("excerpt: got %d characters, want %d", n, ExcerptLength)
	}
	if !utf8.ValidString(txn.RawExcerpt) {
		t.Error("excerpt: not valid UTF-8")
	}
	if !strings.HasPrefix(txn.RawExcerpt, "Compraste $1.000") {
		t.Errorf("excerpt: got %q", txn.RawExcerpt[:20])
	}
}

func TestExtract_Idempotent(t *testing.T) {
	email := api.RawEmail{
		ID:   "18e2b1c0f0a9d3e4",
		From: bancolombiaSender,
		Date: "Tue, 12 Mar 2024 20:15:00 -0500",
		Body: "Compraste $51.850,00 en RAPPI COLOMBIA*DL con tu T.Deb *0970",
	}

	first, err := Default().Extract(email)
	if err != nil {
		t.Fatalf("Extract: unexpected error %v", err)
	}
	second, err := Default().Extract(email)
	if err != nil {
		t.Fatalf("Extract: unexpected error %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Extract not deterministic:\n first: %+v\nsecond: %+v", first, second)
	}
	if first.ID == "" {
		t.Error("id: got empty")
	}

	other := email
	other.ID = "18e2b1c0f0a9d3e5"
	third, err := Default().Extract(other)
	if err != nil {
		t.Fatalf("Extract: unexpected error %v", err)
	}
	if third.ID == first.ID {
		t.Errorf("id: distinct messages share id %s", first.ID)
	}
}

func TestExtract_Concurrent(t *testing.T) {
	ex := Default()
	emails := []api.RawEmail{
		{ID: "a", From: bancolombiaSender, Body: "Compraste $51.850,00 en RAPPI COLOMBIA*DL con tu T.Deb *0970"},
		{ID: "b", From: nubankSender, Body: "Compra aprobada por $50.000 en EXITO"},
		{ID: "c", From: bancolombiaSender, Body: "Recibiste una transferencia por $3,000,000 de VERONICA JIMENO"},
	}

	want := make([]*api.Transaction, len(emails))
	for i, e := range emails {
		txn, err := ex.Extract(e)
		if err != nil {
			t.Fatalf("Extract(%s): unexpected error %v", e.ID, err)
		}
		want[i] = txn
	}

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, e := range emails {
				got, err := ex.Extract(e)
				if err != nil || !reflect.DeepEqual(got, want[i]) {
					errs <- e.ID
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for id := range errs {
		t.Errorf("concurrent Extract(%s) differed from sequential result", id)
	}
}

func TestRouter(t *testing.T) {
	r := NewRouter(DefaultSenders())

	tests := []struct {
		from     string
		wantBank api.Bank
		wantOK   bool
	}{
		{"alertasynotificaciones@bancolombia.com.co", api.BankBancolombia, true},
		{"Bancolombia <AlertasYNotificaciones@Bancolombia.com.co>", api.BankBancolombia, true},
		{"alertasynotificaciones@an.notificacionesbancolombia.com", api.BankBancolombia, true},
		{"todomundopuede@nu.com.co", api.BankNubank, true},
		{"Nu <NU@NU.COM.CO>", api.BankNubank, true},
		{"marketing@bancolombia.com", "", false},
		{"someone@example.com", "", false},
		{"", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.from, func(t *testing.T) {
			bank, ok := r.Route(tc.from)
			if ok != tc.wantOK || bank != tc.wantBank {
				t.Errorf("Route(%q): got (%q, %v), want (%q, %v)", tc.from, bank, ok, tc.wantBank, tc.wantOK)
			}
		})
	}
}

func TestSenderTable_Addresses(t *testing.T) {
	table := SenderTable{
		api.BankNubank:      {"nu@nu.com.co"},
		api.BankBancolombia: {"a@bancolombia.com.co", "b@bancolombia.com.co"},
	}

	got := table.Addresses()
	want := []string{"a@bancolombia.com.co", "b@bancolombia.com.co", "nu@nu.com.co"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Addresses: got %v, want %v", got, want)
	}
}

func TestNew_CustomSenders(t *testing.T) {
	ex := New(SenderTable{api.BankNubank: {"Pruebas@Ejemplo.co"}})

	if _, err := ex.Extract(api.RawEmail{From: "pruebas@ejemplo.co", Body: "Compra por $5.000 en D1"}); err != nil {
		t.Errorf("custom sender: unexpected error %v", err)
	}
	if _, err := ex.Extract(api.RawEmail{From: "todomundopuede@nu.com.co", Body: "Compra por $5.000 en D1"}); !errors.Is(err, ErrUnrecognizedSender) {
		t.Errorf("default sender: got %v, want ErrUnrecognizedSender", err)
	}
}

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}
	return string(data)
}
