// Package orders consumes order and client lifecycle events and applies their stock effects.
package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"productservice/internal/config"
	"productservice/internal/product"
)

// ErrMalformedMessage is returned for payloads that cannot be decoded.
var ErrMalformedMessage = errors.New("orders: malformed message")

// Kind is the routed meaning of an inbound message.
type Kind string

const (
	KindOrderCreated  Kind = "order-created"
	KindOrderUpdated  Kind = "order-updated"
	KindOrderDeleted  Kind = "order-deleted"
	KindClientCreated Kind = "client-created"
	KindUnknown       Kind = "unknown"
)

type LineItem struct {
	ProductID string
	Quantity  int
}

// Order is an inbound order with its line items.
type Order struct {
	ID    string
	Items []LineItem
}

// Command is a decoded message ready for routing. For KindUnknown, Detail names what was
// not recognised.
type Command struct {
	Kind     Kind
	Order    Order
	ClientID string
	Detail   string
}

type orderWire struct {
	ID       flexString `json:"_id"`
	AltID    flexString `json:"id"`
	Produits []itemWire `json:"produits"`
}

type itemWire struct {
	ProduitID flexString `json:"produitId"`
	Quantite  flexInt    `json:"quantite"`
}

type subjectWire struct {
	ID    flexString `json:"_id"`
	AltID flexString `json:"id"`
}

// envelopeWire is the legacy shape on the aggregate topics.
type envelopeWire struct {
	TypeEvenement string          `json:"typeEvenement"`
	Commande      json.RawMessage `json:"commande"`
	Client        json.RawMessage `json:"client"`
}

// Decode parses value according to the topic it arrived on.
func Decode(topic string, value []byte) (Command, error) {
	if len(bytes.TrimSpace(value)) == 0 || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		return Command{}, fmt.Errorf("%w: empty body", ErrMalformedMessage)
	}

	switch topic {
	case config.OrderCreatedTopic:
		return decodeOrder(KindOrderCreated, value)
	case config.OrderUpdatedTopic:
		return decodeOrder(KindOrderUpdated, value)
	case config.OrderDeletedTopic:
		return decodeOrder(KindOrderDeleted, value)
	case config.ClientCreatedTopic:
		return decodeClient(value)
	case config.OrderEventsTopic:
		return decodeLegacyOrder(value)
	case config.ClientEventsTopic:
		return decodeLegacyClient(value)
	default:
		if !json.Valid(value) {
			return Command{}, fmt.Errorf("%w: invalid JSON", ErrMalformedMessage)
		}
		return Command{Kind: KindUnknown, Detail: "topic " + topic}, nil
	}
}

func decodeOrder(kind Kind, value []byte) (Command, error) {
	var w orderWire
	if err := json.Unmarshal(value, &w); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	order := Order{ID: w.ID.or(w.AltID), Items: make([]LineItem, 0, len(w.Produits))}
	for _, item := range w.Produits {
		order.Items = append(order.Items, LineItem{ProductID: string(item.ProduitID), Quantity: int(item.Quantite)})
	}
	return Command{Kind: kind, Order: order}, nil
}

func decodeClient(value []byte) (Command, error) {
	var w subjectWire
	if err := json.Unmarshal(value, &w); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return Command{Kind: KindClientCreated, ClientID: w.ID.or(w.AltID)}, nil
}

func decodeLegacyOrder(value []byte) (Command, error) {
	var env envelopeWire
	if err := json.Unmarshal(value, &env); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var kind Kind
	switch env.TypeEvenement {
	case "cree":
		kind = KindOrderCreated
	case "modifie":
		kind = KindOrderUpdated
	case "annule", "supprime":
		kind = KindOrderDeleted
	default:
		return Command{Kind: KindUnknown, Detail: "typeEvenement " + strconv.Quote(env.TypeEvenement)}, nil
	}

	if len(env.Commande) == 0 || string(env.Commande) == "null" {
		return Command{}, fmt.Errorf("%w: missing commande", ErrMalformedMessage)
	}
	return decodeOrder(kind, env.Commande)
}

func decodeLegacyClient(value []byte) (Command, error) {
	var env envelopeWire
	if err := json.Unmarshal(value, &env); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.TypeEvenement != "cree" {
		return Command{Kind: KindUnknown, Detail: "typeEvenement " + strconv.Quote(env.TypeEvenement)}, nil
	}
	if len(env.Client) == 0 || string(env.Client) == "null" {
		return Command{Kind: KindClientCreated}, nil
	}
	return decodeClient(env.Client)
}

// flexString accepts ids sent as strings, numbers or extended-JSON object ids.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	var oid struct {
		OID string `json:"$oid"`
	}
	if err := json.Unmarshal(b, &oid); err == nil && oid.OID != "" {
		*f = flexString(oid.OID)
		return nil
	}
	return fmt.Errorf("unsupported id %s", b)
}

func (f flexString) or(fallback flexString) string {
	if f != "" {
		return string(f)
	}
	return string(fallback)
}

// flexInt accepts whole numbers sent as JSON numbers or numeric strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != math.Trunc(v) || math.IsInf(v, 0) {
		return fmt.Errorf("quantity %s is not a whole number", b)
	}
	if math.Abs(v) > product.MaxStock {
		return fmt.Errorf("quantity %s is out of range", b)
	}
	*f = flexInt(v)
	return nil
}
