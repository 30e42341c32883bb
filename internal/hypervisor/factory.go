package hypervisor

import (
	"provinator.io/provinator/internal/domain"
	apperrors "provinator.io/provinator/internal/pkg/errors"
)

// ForEnvironment builds the concrete driver for an environment. This is
// the single place where an environment type tag is turned into vendor
// code; everything downstream works against Driver.
func ForEnvironment(env *domain.Environment) (Driver, error) {
	switch env.Type {
	case domain.EnvTypeProxmox:
		return NewProxmox(ProxmoxOptions{
			Host:       env.PVEHost,
			TokenID:    env.PVETokenID,
			TokenValue: env.PVETokenValue,
			VerifySSL:  env.PVEVerifySSL,
		}), nil
	case domain.EnvTypeESXi, domain.EnvTypeVCenter:
		return NewVSphere(VSphereOptions{
			Host:       env.VSphereHost,
			User:       env.VSphereUser,
			Password:   env.VSpherePassword,
			Datacenter: env.VSphereDatacenter,
			Datastore:  env.VSphereDatastore,
			VerifySSL:  env.VSphereVerifySSL,
			TypeTag:    env.Type,
		}), nil
	default:
		return nil, apperrors.New(apperrors.CodeEnvironmentInvalid,
			"unknown environment type: "+env.Type, 400)
	}
}
