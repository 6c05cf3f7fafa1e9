package afip

import (
	"fmt"
	"strconv"
	"unicode"
)

// pesos del algoritmo módulo 11 para el dígito verificador de la CUIT/CUIL,
// aplicados a los 10 primeros dígitos de izquierda a derecha.
var cuitWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// ValidateCUIT valida que la CUIT (con o sin guiones) tenga 11 dígitos y un
// dígito verificador correcto. Acepta "20-12345678-6" o "20123456786".
func ValidateCUIT(cuit string) error {
	digits := extractDigits(cuit)
	if len(digits) != 11 {
		return fmt.Errorf("afip: la CUIT debe tener 11 dígitos, se encontraron %d", len(digits))
	}
	expected, err := ComputeCUITCheckDigit(string(digits[:10]))
	if err != nil {
		return err
	}
	if digits[10] != expected {
		return fmt.Errorf("afip: dígito verificador de la CUIT inválido: esperado %c, recibido %c", expected, digits[10])
	}
	return nil
}

// ComputeCUITCheckDigit calcula el dígito verificador para los 10 primeros dígitos.
// Devuelve error cuando el resto del módulo 11 es 1 (AFIP no emite CUIT con ese prefijo/DNI).
func ComputeCUITCheckDigit(first10 string) (byte, error) {
	digits := extractDigits(first10)
	if len(digits) < 10 {
		return 0, fmt.Errorf("afip: se requieren 10 dígitos para calcular el verificador, se encontraron %d", len(digits))
	}
	var sum int
	for i, d := range digits[:10] {
		sum += int(d-'0') * cuitWeights[i]
	}
	check := 11 - sum%11
	switch check {
	case 11:
		return '0', nil
	case 10:
		return 0, fmt.Errorf("afip: combinación sin dígito verificador válido")
	default:
		return byte('0' + check), nil
	}
}

// ParseCUIT devuelve la CUIT como entero (formato exigido en Auth/Cuit), validando el verificador.
func ParseCUIT(cuit string) (int64, error) {
	if err := ValidateCUIT(cuit); err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(extractDigits(cuit)), 10, 64)
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return out
}
