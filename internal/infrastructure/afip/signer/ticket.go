package signer

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
)

// TicketRequest datos del loginTicketRequest.
type TicketRequest struct {
	UniqueID       uint32
	GenerationTime time.Time
	ExpirationTime time.Time
	Service        string
}

// NewTicketRequest arma un TRA para service con generationTime = now - ClockSkew
// y expirationTime = now + ttl. uniqueId sale de un UUID aleatorio.
func NewTicketRequest(service string, now time.Time, ttl time.Duration) TicketRequest {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	id := uuid.New()
	return TicketRequest{
		UniqueID:       binary.BigEndian.Uint32(id[:4]),
		GenerationTime: now.Add(-ClockSkew),
		ExpirationTime: now.Add(ttl),
		Service:        service,
	}
}

// XML serializa el TRA.
func (r TicketRequest) XML() ([]byte, error) {
	if r.Service == "" {
		return nil, fmt.Errorf("afip: TRA sin servicio")
	}
	if !r.ExpirationTime.After(r.GenerationTime) {
		return nil, fmt.Errorf("afip: TRA con expirationTime anterior a generationTime")
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("loginTicketRequest")
	root.CreateAttr("version", TicketRequestVersion)

	header := root.CreateElement("header")
	header.CreateElement("uniqueId").SetText(strconv.FormatUint(uint64(r.UniqueID), 10))
	header.CreateElement("generationTime").SetText(r.GenerationTime.Format(TimestampLayout))
	header.CreateElement("expirationTime").SetText(r.ExpirationTime.Format(TimestampLayout))
	root.CreateElement("service").SetText(r.Service)

	return doc.WriteToBytes()
}
