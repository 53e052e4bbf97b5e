package messaging

import (
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestSendSystemMessage(t *testing.T) {
	client, mock := redismock.NewClientMock()
	messenger := NewRedisMessenger(client)

	mock.Regexp().ExpectPublish("channel:chan1", `.*"system":true.*`).SetVal(1)

	err := messenger.SendSystemMessage("chan1", "Seller has marked the deal as done.")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
