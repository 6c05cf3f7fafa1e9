package afip

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

const soapEnvNS = "http://schemas.xmlsoap.org/soap/envelope/"

// ── Sobre SOAP 1.1 ────────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName   xml.Name   `xml:"soap:Envelope"`
	XmlnsSoap string     `xml:"xmlns:soap,attr"`
	Header    soapHeader `xml:"soap:Header"`
	Body      soapBody   `xml:"soap:Body"`
}

type soapHeader struct{}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soap:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type responseEnvelope[T any] struct {
	Body responseBody[T] `xml:"Body"`
}

type responseBody[T any] struct {
	Fault   *soapFault `xml:"Fault"`
	Content *T         `xml:",any"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// EncodeEnvelope serializa content dentro de un sobre SOAP 1.1 con declaración XML.
// El orden de los elementos es el de los campos del struct.
func EncodeEnvelope(content any) ([]byte, error) {
	envelope := soapEnvelope{
		XmlnsSoap: soapEnvNS,
		Body:      soapBody{Content: content},
	}
	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}
	return append([]byte(xml.Header), payload...), nil
}

// DecodeEnvelope interpreta la respuesta de operation y devuelve el primer elemento del Body como T.
// Un SOAP Fault, un cuerpo vacío o un elemento distinto del esperado producen *ProtocolError.
func DecodeEnvelope[T any](raw []byte, operation string) (*T, error) {
	var env responseEnvelope[T]
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&env); err != nil {
		return nil, &ProtocolError{Operation: operation, Detail: "respuesta no interpretable", Err: err}
	}
	if f := env.Body.Fault; f != nil {
		return nil, &ProtocolError{
			Operation: operation,
			Detail:    "SOAP Fault",
			Err:       &SOAPFault{Code: strings.TrimSpace(f.FaultCode), String: strings.TrimSpace(f.FaultString)},
		}
	}
	if env.Body.Content == nil {
		return nil, &ProtocolError{Operation: operation, Detail: "cuerpo SOAP vacío"}
	}
	return env.Body.Content, nil
}

// AsSOAPFault extrae el fault SOAP de err, si lo hay.
func AsSOAPFault(err error) (*SOAPFault, bool) {
	var f *SOAPFault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// AFIP responde en UTF-8 salvo algunos nodos WSAA que declaran ISO-8859-1.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("soap: charset no soportado %q", label)
}
