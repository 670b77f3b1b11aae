// Package events turns stock engine outcomes into domain events on the bus.
package events

import (
	"strconv"
	"time"

	"productservice/internal/config"
	"productservice/internal/product"
)

// Header names carried by every published message.
const (
	HeaderEventType = "event-type"
	HeaderSource    = "source"
	HeaderTimestamp = "timestamp"
	HeaderMessageID = "message-id"
)

// Values of the event-type header.
const (
	EventProductCreated      = "product-created"
	EventProductUpdated      = "product-updated"
	EventProductDeleted      = "product-deleted"
	EventProductStockUpdated = "product-stock-updated"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Payload is the JSON body of a domain event. Field names are the ones downstream
// consumers already read.
type Payload struct {
	TypeEvenement     string           `json:"typeEvenement"`
	Action            string           `json:"action"`
	ProduitID         string           `json:"produitId"`
	Name              string           `json:"name,omitempty"`
	Produit           *product.Product `json:"produit,omitempty"`
	AnciennesDonnees  *product.Product `json:"anciennesDonnees,omitempty"`
	AncienStock       *int             `json:"ancienStock,omitempty"`
	NouveauStock      *int             `json:"nouveauStock,omitempty"`
	TypeMouvement     string           `json:"typeMouvement,omitempty"`
	QuantiteReservee  *int             `json:"quantiteReservee,omitempty"`
	QuantiteRestauree *int             `json:"quantiteRestauree,omitempty"`
	CommandeID        string           `json:"commandeId,omitempty"`
	Timestamp         string           `json:"timestamp"`
	Service           string           `json:"service"`
}

// event is one domain event before encoding: its payload, header type and target topics.
type event struct {
	key       string
	eventType string
	topics    []string
	payload   Payload
}

func createdEvent(p product.Product, now time.Time) event {
	return event{
		key:       p.ID,
		eventType: EventProductCreated,
		topics:    []string{config.ProductEventsTopic, config.ProductCreatedTopic},
		payload: stamp(Payload{
			TypeEvenement: "cree",
			Action:        "CREATE",
			ProduitID:     p.ID,
			Name:          p.Name,
			Produit:       &p,
		}, now),
	}
}

func updatedEvent(before, after product.Product, now time.Time) event {
	return event{
		key:       after.ID,
		eventType: EventProductUpdated,
		topics:    []string{config.ProductEventsTopic},
		payload: stamp(Payload{
			TypeEvenement:    "modifie",
			Action:           "UPDATE",
			ProduitID:        after.ID,
			Name:             after.Name,
			Produit:          &after,
			AnciennesDonnees: &before,
		}, now),
	}
}

func deletedEvent(p product.Product, now time.Time) event {
	return event{
		key:       p.ID,
		eventType: EventProductDeleted,
		topics:    []string{config.ProductEventsTopic},
		payload: stamp(Payload{
			TypeEvenement: "supprime",
			Action:        "DELETE",
			ProduitID:     p.ID,
			Name:          p.Name,
			Produit:       &p,
		}, now),
	}
}

func stockEvent(m product.StockMutation, now time.Time) event {
	oldStock, newStock, quantity := m.OldStock, m.NewStock, m.Quantity
	payload := Payload{
		TypeEvenement: "stock-modifie",
		Action:        "STOCK_UPDATE",
		ProduitID:     m.ProductID,
		Name:          m.Product.Name,
		Produit:       &m.Product,
		AncienStock:   &oldStock,
		NouveauStock:  &newStock,
		TypeMouvement: string(m.Kind),
		CommandeID:    m.CorrelationID,
	}
	switch m.Kind {
	case product.DeltaReserved:
		payload.QuantiteReservee = &quantity
	case product.DeltaReleased:
		payload.QuantiteRestauree = &quantity
	}
	return event{
		key:       m.ProductID,
		eventType: EventProductStockUpdated,
		topics:    []string{config.ProductEventsTopic, config.ProductStockUpdatedTopic},
		payload:   stamp(payload, now),
	}
}

func stamp(p Payload, now time.Time) Payload {
	p.Timestamp = now.UTC().Format(isoMillis)
	p.Service = config.EventService
	return p
}

func headers(eventType, messageID string, now time.Time) map[string]string {
	return map[string]string{
		HeaderEventType: eventType,
		HeaderSource:    config.ServiceName,
		HeaderTimestamp: strconv.FormatInt(now.UnixMilli(), 10),
		HeaderMessageID: messageID,
	}
}
