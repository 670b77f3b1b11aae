package orders

import (
	"testing"

	"productservice/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		value string
		want  Command
	}{
		{
			name:  "order created with string id",
			topic: config.OrderCreatedTopic,
			value: `{"_id":"c-1","produits":[{"produitId":"p1","quantite":2}]}`,
			want:  Command{Kind: KindOrderCreated, Order: Order{ID: "c-1", Items: []LineItem{{ProductID: "p1", Quantity: 2}}}},
		},
		{
			name:  "numeric id fallback",
			topic: config.OrderDeletedTopic,
			value: `{"id":17,"produits":[{"produitId":{"$oid":"65a1"},"quantite":1.0}]}`,
			want:  Command{Kind: KindOrderDeleted, Order: Order{ID: "17", Items: []LineItem{{ProductID: "65a1", Quantity: 1}}}},
		},
		{
			name:  "legacy supprime",
			topic: config.OrderEventsTopic,
			value: `{"typeEvenement":"supprime","commande":{"_id":"c-9","produits":[]}}`,
			want:  Command{Kind: KindOrderDeleted, Order: Order{ID: "c-9", Items: []LineItem{}}},
		},
		{
			name:  "legacy unknown type",
			topic: config.OrderEventsTopic,
			value: `{"typeEvenement":"livre"}`,
			want:  Command{Kind: KindUnknown, Detail: `typeEvenement "livre"`},
		},
		{
			name:  "client created",
			topic: config.ClientCreatedTopic,
			value: `{"id":"u-1"}`,
			want:  Command{Kind: KindClientCreated, ClientID: "u-1"},
		},
		{
			name:  "unknown topic",
			topic: "inventory-audit",
			value: `{}`,
			want:  Command{Kind: KindUnknown, Detail: "topic inventory-audit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.topic, []byte(tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		value string
	}{
		{"empty body", config.OrderCreatedTopic, ``},
		{"null body", config.OrderCreatedTopic, `null`},
		{"truncated json", config.OrderCreatedTopic, `{"produits":`},
		{"fractional quantity", config.OrderCreatedTopic, `{"produits":[{"produitId":"p1","quantite":1.5}]}`},
		{"legacy without commande", config.OrderEventsTopic, `{"typeEvenement":"cree"}`},
		{"unknown topic garbage", "inventory-audit", `not json`},
		{"quantity out of range", config.OrderDeletedTopic, `{"produits":[{"produitId":"p1","quantite":1e300}]}`},
		{"quantity above max stock", config.OrderDeletedTopic, `{"produits":[{"produitId":"p1","quantite":"9223372036854775807"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.topic, []byte(tt.value))
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}
