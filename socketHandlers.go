package main

import (
	"frog-classifier/models"
	"frog-classifier/service"

	socketio "github.com/googollee/go-socket.io"
)

// socketController streams inference activity to connected clients: model
// metadata on connect (or on request) and every completed prediction as it
// happens. It is the service's Notifier.
type socketController struct {
	server  *socketio.Server
	service *service.PredictionService
}

func newSocketController(server *socketio.Server) *socketController {
	return &socketController{server: server}
}

func (c *socketController) modelInfo() map[string]interface{} {
	return map[string]interface{}{
		"species":      c.service.Classes(),
		"featureCount": c.service.InputDim(),
		"audioEnabled": c.service.AudioEnabled(),
	}
}

func (c *socketController) emitModelInfo(socket socketio.Conn) {
	socket.Emit("modelInfo", c.modelInfo())
}

func (c *socketController) handleRequestModelInfo(socket socketio.Conn) {
	c.emitModelInfo(socket)
}

// NotifyPrediction fans a finished prediction out to every connected client.
func (c *socketController) NotifyPrediction(response *models.PredictionResponse) {
	if c.server == nil {
		return
	}
	c.server.BroadcastToNamespace("/", "prediction", response)
}
