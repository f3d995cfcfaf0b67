package messages

import (
	"testing"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestDirectionDerivation(t *testing.T) {
	phone := "1234567890"
	jid := phone + "@s.whatsapp.net"

	incoming := models.Message{SenderJID: jid, RecipientJID: "system@s.whatsapp.net"}
	assert.Equal(t, models.DirectionIncoming, incoming.Direction(phone))

	outgoing := models.Message{SenderJID: "system@s.whatsapp.net", RecipientJID: jid}
	assert.Equal(t, models.DirectionOutgoing, outgoing.Direction(phone))

	system := models.Message{SenderJID: "a@s.whatsapp.net", RecipientJID: "b@s.whatsapp.net"}
	assert.Equal(t, models.DirectionSystem, system.Direction(phone))
}

func TestJIDsForDirection(t *testing.T) {
	userJID := "1234567890@s.whatsapp.net"

	sender, recipient := jidsForDirection(models.DirectionIncoming, userJID)
	assert.Equal(t, userJID, sender)
	assert.NotEqual(t, userJID, recipient)

	sender, recipient = jidsForDirection(models.DirectionOutgoing, userJID)
	assert.Equal(t, userJID, recipient)
	assert.NotEqual(t, userJID, sender)
}
