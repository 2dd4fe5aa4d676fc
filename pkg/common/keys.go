package common

import "fmt"

var (
	// Token refresh keys
	refreshLock string = "refresh:lock:%s" // connectionId

	// Import keys
	importLock string = "import:lock:%s:%s:%s" // projectId, sourceType, originId

	// Gateway keys
	gatewayInitLock string = "gateway:init:%s:lock" // name
)

var Keys = &redisKeys{}

type redisKeys struct{}

func (rk *redisKeys) RefreshLock(connectionId string) string {
	return fmt.Sprintf(refreshLock, connectionId)
}

func (rk *redisKeys) ImportLock(projectId, sourceType, originId string) string {
	return fmt.Sprintf(importLock, projectId, sourceType, originId)
}

func (rk *redisKeys) GatewayInitLock(name string) string {
	return fmt.Sprintf(gatewayInitLock, name)
}
