package afip

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Errores de mapeo: un valor del dominio no tiene equivalente en las tablas de AFIP.
// Son fatales para el comprobante y nunca se reintentan.
var (
	ErrUnsupportedDocumentType = errors.New("afip: tipo de comprobante no soportado")
	ErrUnsupportedIDType       = errors.New("afip: tipo de documento del receptor no soportado")
	ErrUnsupportedCurrency     = errors.New("afip: moneda no soportada")
	ErrUnsupportedConcept      = errors.New("afip: concepto no soportado")
	ErrUnsupportedTribute      = errors.New("afip: tributo no soportado")
	ErrClassCWithVAT           = errors.New("afip: comprobante clase C con desglose de IVA")
)

// SigningError falla local de certificado o llave; requiere intervención del operador.
type SigningError struct {
	Op  string
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("afip: firma (%s): %v", e.Op, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// AuthenticationError no se pudo obtener o renovar el ticket de acceso (WSAA).
// Err es un *TransportError cuando la causa es de red.
type AuthenticationError struct {
	Detail string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("afip: autenticación WSAA: %s: %v", e.Detail, e.Err)
	}
	return "afip: autenticación WSAA: " + e.Detail
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// ProtocolError se recibió respuesta pero falta la estructura esperada (o es un SOAP Fault).
// No es un rechazo de negocio.
// Number es el número de comprobante enviado en FECAESolicitar (0 en otras operaciones).
type ProtocolError struct {
	Operation string
	Detail    string
	Number    int64
	Err       error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("afip: protocolo %s: %s: %v", e.Operation, e.Detail, e.Err)
	}
	return fmt.Sprintf("afip: protocolo %s: %s", e.Operation, e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// SOAPFault falla SOAP devuelta por el servicio.
type SOAPFault struct {
	Code   string
	String string
}

func (f *SOAPFault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.String)
}

// ServiceError AFIP respondió con errores propios para una consulta (no una solicitud de CAE),
// por ejemplo punto de venta inexistente. No se reintenta.
type ServiceError struct {
	Operation string
	Errors    []CodeMsg
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("afip: %s: %s", e.Operation, joinMessages(e.Errors))
}

// codeNotFound error de FECompConsultar cuando el comprobante no existe.
const codeNotFound = 602

// NotFound indica si AFIP informó que el comprobante consultado no existe.
func (e *ServiceError) NotFound() bool {
	for _, m := range e.Errors {
		if m.Code == codeNotFound {
			return true
		}
	}
	return false
}

func joinMessages(msgs []CodeMsg) string {
	if len(msgs) == 0 {
		return "sin detalle"
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("[%d] %s", m.Code, m.Msg))
	}
	return strings.Join(parts, "; ")
}

// TransportError falla de red o timeout al invocar un servicio.
// Number es el número de comprobante enviado en FECAESolicitar (0 en otras operaciones).
type TransportError struct {
	Operation string
	Timeout   bool
	Number    int64
	Err       error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("afip: timeout en %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("afip: transporte %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnsupportedTaxRateError alícuota de IVA sin código AFIP.
type UnsupportedTaxRateError struct {
	Rate decimal.Decimal
}

func (e *UnsupportedTaxRateError) Error() string {
	return fmt.Sprintf("afip: alícuota de IVA %s%% no soportada", e.Rate.String())
}

// SubmittedNumber devuelve el número de comprobante de un FECAESolicitar cuyo resultado
// se desconoce: AFIP pudo haberlo autorizado aunque la respuesta no llegó o no se pudo leer.
func SubmittedNumber(err error) (int64, bool) {
	var transportErr *TransportError
	if errors.As(err, &transportErr) && transportErr.Operation == OpSolicitar && transportErr.Number > 0 {
		return transportErr.Number, true
	}
	var protocolErr *ProtocolError
	if errors.As(err, &protocolErr) && protocolErr.Operation == OpSolicitar && protocolErr.Number > 0 {
		return protocolErr.Number, true
	}
	return 0, false
}

func withNumber(err error, n int64) error {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		transportErr.Number = n
	}
	var protocolErr *ProtocolError
	if errors.As(err, &protocolErr) {
		protocolErr.Number = n
	}
	return err
}

// IsRetryable indica si el error justifica un reintento con backoff:
// transporte, protocolo y autenticación sí; firma, mapeo y validación no.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var signErr *SigningError
	if errors.As(err, &signErr) {
		return false
	}
	var transportErr *TransportError
	var protocolErr *ProtocolError
	var authErr *AuthenticationError
	return errors.As(err, &transportErr) || errors.As(err, &protocolErr) || errors.As(err, &authErr)
}

// IsMappingError indica si err proviene de traducir el comprobante a las tablas de AFIP.
func IsMappingError(err error) bool {
	var rateErr *UnsupportedTaxRateError
	return errors.As(err, &rateErr) ||
		errors.Is(err, ErrUnsupportedDocumentType) ||
		errors.Is(err, ErrUnsupportedIDType) ||
		errors.Is(err, ErrUnsupportedCurrency) ||
		errors.Is(err, ErrUnsupportedConcept) ||
		errors.Is(err, ErrUnsupportedTribute) ||
		errors.Is(err, ErrClassCWithVAT)
}
