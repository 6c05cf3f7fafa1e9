// Firma CMS (PKCS#7 SignedData) del TRA para loginCms de WSAA.

package signer

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"fmt"

	"github.com/smallstep/pkcs7"
	"github.com/ucarion/c14n"
)

// CMSSigner firma el TRA canonicalizado con el certificado del contribuyente.
// WSAA espera el contenido embebido en el SignedData; Detached solo sirve para
// transportes que envían el TRA por separado.
type CMSSigner struct {
	Detached bool
}

// NewCMSSigner crea el firmante con contenido embebido.
func NewCMSSigner() *CMSSigner {
	return &CMSSigner{}
}

// Sign devuelve el SignedData en DER (SHA-256, RSA) sobre la forma canónica de traXML.
func (s *CMSSigner) Sign(traXML []byte, cert tls.Certificate) ([]byte, error) {
	if len(traXML) == 0 {
		return nil, fmt.Errorf("TRA vacío")
	}
	if len(cert.Certificate) == 0 || cert.PrivateKey == nil {
		return nil, fmt.Errorf("certificado sin llave privada")
	}
	leaf := cert.Leaf
	if leaf == nil {
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("parsear certificado: %w", err)
		}
		leaf = parsed
	}

	// Si la forma canónica falla se firma el TRA tal cual; WSAA lo acepta igual.
	content, err := canonicalizeXML(traXML)
	if err != nil {
		content = traXML
	}

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("crear SignedData: %w", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(leaf, cert.PrivateKey, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("agregar firmante: %w", err)
	}
	if s.Detached {
		sd.Detach()
	}
	der, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("finalizar SignedData: %w", err)
	}
	return der, nil
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}
