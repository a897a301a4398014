package mailbody

import (
	"encoding/base64"
	"testing"
)

func TestDecode(t *testing.T) {
	text := "Compraste $51.850,00 en PANADERÍA LA ESPAÑOLA con tu T.Deb *0970"

	tests := []struct {
		name   string
		data   string
		want   string
		wantOK bool
	}{
		{"url padded", base64.URLEncoding.EncodeToString([]byte(text)), text, true},
		{"url raw", base64.RawURLEncoding.EncodeToString([]byte(text)), text, true},
		{"std", base64.StdEncoding.EncodeToString([]byte(text)), text, true},
		{"surrounding whitespace", "\n" + base64.URLEncoding.EncodeToString([]byte(text)) + "\r\n", text, true},
		{"latin1 bytes", base64.URLEncoding.EncodeToString([]byte("Panader\xeda")), "Panadería", true},
		{"empty", "", "", true},
		{"not base64", "Compraste $10.000 en D1", "Compraste $10.000 en D1", false},
		{"garbage", "%%%?", "%%%?", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Decode(tc.data)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("Decode: got (%q, %v), want (%q, %v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestToUTF8(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		charset string
		want    string
	}{
		{"utf8", []byte("Nómina"), "", "Nómina"},
		{"utf8 declared", []byte("Nómina"), "UTF-8", "Nómina"},
		{"iso-8859-1 declared", []byte("N\xf3mina"), "iso-8859-1", "Nómina"},
		{"windows-1252 declared", []byte("Bot\xf3n"), "windows-1252", "Botón"},
		{"undeclared latin1", []byte("Bot\xf3n"), "", "Botón"},
		{"unknown charset", []byte("Bot\xf3n"), "x-made-up", "Botón"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToUTF8(tc.input, tc.charset); got != tc.want {
				t.Errorf("ToUTF8: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "inline tags join",
			input: `<p>Compraste $51.850,00 en <b>RAPPI COLOMBIA*DL</b> con tu T.Deb *0970</p>`,
			want:  "Compraste $51.850,00 en RAPPI COLOMBIA*DL con tu T.Deb *0970",
		},
		{
			name:  "blocks become lines",
			input: "<div>Hola Nicolas,</div><div>Compra aprobada por $50.000 en EXITO</div>",
			want:  "Hola Nicolas,\nCompra aprobada por $50.000 en EXITO",
		},
		{
			name:  "entities",
			input: "<p>Bot&oacute;n&nbsp;Bancolombia &amp; m&aacute;s</p>",
			want:  "Botón Bancolombia & más",
		},
		{
			name:  "script and style dropped",
			input: "<html><head><title>Alerta</title><style>p{color:red}</style></head><body><script>var x = 1;</script><p>Recibiste $3.000</p></body></html>",
			want:  "Recibiste $3.000",
		},
		{
			name:  "table cells",
			input: "<table><tr><td>Valor</td><td>$10.000</td></tr></table>",
			want:  "Valor $10.000",
		},
		{
			name:  "plain text",
			input: "Retiro por $100.000",
			want:  "Retiro por $100.000",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTMLToText(tc.input); got != tc.want {
				t.Errorf("HTMLToText: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLooksLikeHTML(t *testing.T) {
	if !LooksLikeHTML("<!DOCTYPE html><html><body>x</body></html>") {
		t.Error("LooksLikeHTML: document not detected")
	}
	if !LooksLikeHTML("Hola<br>mundo") {
		t.Error("LooksLikeHTML: fragment not detected")
	}
	if LooksLikeHTML("Compraste $1.000 en TIENDA") {
		t.Error("LooksLikeHTML: plain text detected as html")
	}
}
