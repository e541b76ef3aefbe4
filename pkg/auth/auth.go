package auth

import (
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/env"
)

// AdminSecretKey guards the /admin/* endpoints. Admin routes answer 500 while it is empty.
var AdminSecretKey string

func init() {
	AdminSecretKey, _ = env.GetEnvString("ADMIN_SECRET_KEY")
}
