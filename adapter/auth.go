package adapter

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// SessionAuth signs the pairing token presented in the first frame of
// each connection. The host verifies the token with the shared secret
// minted during pairing. Each adapter instance carries a stable
// instance id so the host can tell concurrent clients apart.
type SessionAuth struct {
	App string
	InstanceId ulid.ULID
	Secret []byte
}

func NewSessionAuth(app string, secret []byte) *SessionAuth {
	return &SessionAuth{
		App: app,
		InstanceId: ulid.Make(),
		Secret: secret,
	}
}

func (self *SessionAuth) SessionToken() (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"app": self.App,
		"instance_id": self.InstanceId.String(),
		"iat": time.Now().Unix(),
	})
	return token.SignedString(self.Secret)
}

// VerifySessionToken parses and validates a pairing token. Used on the
// host side of the pairing handshake.
func VerifySessionToken(tokenString string, secret []byte) (app string, instanceId ulid.ULID, returnErr error) {
	token, err := jwt.Parse(
		tokenString,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return secret, nil
		},
	)
	if err != nil {
		returnErr = err
		return
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		returnErr = fmt.Errorf("bad claims")
		return
	}
	app, ok = claims["app"].(string)
	if !ok {
		returnErr = fmt.Errorf("missing app claim")
		return
	}
	instanceIdString, ok := claims["instance_id"].(string)
	if !ok {
		returnErr = fmt.Errorf("missing instance_id claim")
		return
	}
	instanceId, returnErr = ulid.Parse(instanceIdString)
	return
}
