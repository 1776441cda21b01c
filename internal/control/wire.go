// ABOUTME: JSON message types of the control service
// ABOUTME: Shared by the server descriptors and the admin client

package control

import (
	"github.com/2389/recgate/internal/auth"
	"github.com/2389/recgate/internal/config"
)

type emptyRequest struct{}

type ackReply struct {
	OK bool `json:"ok"`
}

type configMessage struct {
	Config *config.Config `json:"config"`
}

type validateRequest struct {
	Account    string          `json:"account"`
	Password   string          `json:"password"`
	Privileges auth.Privileges `json:"privileges"`
}
