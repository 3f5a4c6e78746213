// Package api exposes a hearth Server over a RESTful HTTP API plus two
// websocket endpoints for live device and environment notifications.
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "gopkg.in/inconshreveable/log15.v2"
	logext "gopkg.in/inconshreveable/log15.v2/ext"
	"gopkg.in/tylerb/graceful.v1"

	"github.com/hearthd/hearth"
	"github.com/hearthd/hearth/logging"
	"github.com/hearthd/hearth/types"
)

// Log is used to log messages for the api package. Logs are disabled by
// default; use hearth/logging.SetLevelStr() to set log levels for all
// packages.
var Log = logging.Log.New("pkg", "api")

// An API serves a hearth Server over HTTP. Always initialize APIs with a
// call to New().
type API struct {
	srv        *hearth.Server
	addr       string
	httpServer *graceful.Server
	upgrader   websocket.Upgrader
	keepAlive  time.Duration
	log        log.Logger
}

// New creates an API serving srv on addr (e.g. ":8000").
func New(srv *hearth.Server, addr string) *API {
	return &API{
		srv:  srv,
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		keepAlive: keepAliveInterval,
		log:       Log.New("obj", "api", "id", logext.RandId(8)),
	}
}

// Serve runs the HTTP API until Stop is called. Run it under a supervisor or
// in a goroutine alongside the hearth Server.
func (a *API) Serve() {
	a.httpServer = &graceful.Server{
		Timeout: 2 * time.Second,
		Server: &http.Server{
			Addr:    a.addr,
			Handler: a.Handlers(),
		},
	}
	a.log.Info("hearth http api started", "addr", a.addr)
	if err := a.httpServer.ListenAndServe(); err != nil {
		a.log.Error("hearth http api stopped serving", "err", err)
	}
}

// Stop gracefully stops the HTTP API.
func (a *API) Stop() {
	if a.httpServer != nil {
		a.httpServer.Stop(5 * time.Second)
		<-a.httpServer.StopChan()
	}
}

// Handlers provides the set of HTTP route handlers which make up the hearth
// API.
func (a *API) Handlers() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", a.statusHTTP).Methods("GET")

	r.HandleFunc("/rooms", a.getRoomsHTTP).Methods("GET")
	r.HandleFunc("/rooms", a.createRoomHTTP).Methods("POST")
	r.HandleFunc("/rooms/{roomID}", a.getRoomHTTP).Methods("GET")
	r.HandleFunc("/rooms/{roomID}", a.putRoomHTTP).Methods("PUT")
	r.HandleFunc("/rooms/{roomID}", a.deleteRoomHTTP).Methods("DELETE")

	r.HandleFunc("/devices", a.getDevicesHTTP).Methods("GET")
	r.HandleFunc("/devices/sync", a.syncDevicesHTTP).Methods("POST")
	r.HandleFunc("/devices/{devID}", a.getDeviceHTTP).Methods("GET")
	r.HandleFunc("/devices/{devID}", a.putDeviceHTTP).Methods("PUT")
	r.HandleFunc("/devices/{devID}", a.patchDeviceHTTP).Methods("PATCH")
	r.HandleFunc("/devices/{devID}", a.deleteDeviceHTTP).Methods("DELETE")

	r.HandleFunc("/cameras", a.getCamerasHTTP).Methods("GET")
	r.HandleFunc("/cameras/{camID}", a.getCameraHTTP).Methods("GET")
	r.HandleFunc("/cameras/{camID}", a.putCameraHTTP).Methods("PUT")
	r.HandleFunc("/cameras/{camID}", a.patchCameraHTTP).Methods("PATCH")
	r.HandleFunc("/cameras/{camID}", a.deleteCameraHTTP).Methods("DELETE")
	r.HandleFunc("/cameras/{camID}/verifications", a.verifyFaceHTTP).Methods("POST")

	r.HandleFunc("/users", a.getUsersHTTP).Methods("GET")
	r.HandleFunc("/users/{userID}/faces", a.registerFaceHTTP).Methods("POST")

	r.HandleFunc("/voices", a.voiceCommandHTTP).Methods("POST")
	r.HandleFunc("/voices/history", a.getHistoryHTTP).Methods("GET")
	r.HandleFunc("/voices/history", a.deleteHistoryHTTP).Methods("DELETE")

	r.HandleFunc("/environment", a.getEnvironmentHTTP).Methods("GET")
	r.HandleFunc("/environment", a.putEnvironmentHTTP).Methods("PUT")

	r.HandleFunc("/ws/devices", a.devicesWS).Methods("GET")
	r.HandleFunc("/ws/environment", a.environmentWS).Methods("GET")
	return r
}

// httpError maps engine errors onto HTTP status codes: missing rows are the
// client's 404, rejected input is a 400, a failed encoding is a 422, and
// anything else is the server's fault.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hearth.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, hearth.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, hearth.ErrEncodingFailure):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}, httpCode int) {
	asJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writePretty(w, asJSON, httpCode)
}

// writePretty tries to pretty-format a JSON string and write it to the
// provided http.ResponseWriter. If pretty-formatting fails, writePretty will
// write the original string instead.
func writePretty(rw http.ResponseWriter, jsn []byte, httpCode int) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, jsn, "", "   "); err != nil {
		http.Error(rw, string(jsn), httpCode)
		return
	}
	http.Error(rw, pretty.String(), httpCode)
}

type serverStatus struct {
	Service string `json:"service"`
	Time    string `json:"time"`
}

func (a *API) statusHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, serverStatus{Service: "hearth", Time: time.Now().Format(time.RFC3339)}, http.StatusOK)
}

func (a *API) getRoomsHTTP(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.srv.Rooms()
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, rooms, http.StatusOK)
}

func (a *API) createRoomHTTP(w http.ResponseWriter, r *http.Request) {
	var room types.Room
	if err := json.NewDecoder(r.Body).Decode(&room); err != nil {
		http.Error(w, "unable to interpret request body as a room: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.srv.CreateRoom(room); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, room, http.StatusCreated)
}

func (a *API) getRoomHTTP(w http.ResponseWriter, r *http.Request) {
	room, err := a.srv.GetRoom(mux.Vars(r)["roomID"])
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, room, http.StatusOK)
}

func (a *API) putRoomHTTP(w http.ResponseWriter, r *http.Request) {
	var room types.Room
	if err := json.NewDecoder(r.Body).Decode(&room); err != nil {
		http.Error(w, "unable to interpret request body as a room: "+err.Error(), http.StatusBadRequest)
		return
	}
	room.ID = mux.Vars(r)["roomID"]
	if err := a.srv.UpdateRoom(room); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, room, http.StatusOK)
}

func (a *API) deleteRoomHTTP(w http.ResponseWriter, r *http.Request) {
	if err := a.srv.DeleteRoom(mux.Vars(r)["roomID"]); err != nil {
		httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getDevicesHTTP(w http.ResponseWriter, r *http.Request) {
	devices, err := a.srv.Devices(r.URL.Query().Get("room"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, devices, http.StatusOK)
}

func (a *API) syncDevicesHTTP(w http.ResponseWriter, r *http.Request) {
	if err := a.srv.SyncFromBroker(r.URL.Query().Get("room")); err != nil {
		httpError(w, err)
		return
	}
	a.getDevicesHTTP(w, r)
}

func (a *API) getDeviceHTTP(w http.ResponseWriter, r *http.Request) {
	dev, err := a.srv.GetDevice(mux.Vars(r)["devID"])
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, dev, http.StatusOK)
}

func (a *API) putDeviceHTTP(w http.ResponseWriter, r *http.Request) {
	var dev types.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		http.Error(w, "unable to interpret request body as a device: "+err.Error(), http.StatusBadRequest)
		return
	}
	dev.ID = mux.Vars(r)["devID"]
	if err := a.srv.UpsertDevice(dev); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, dev, http.StatusOK)
}

// patchRequest carries a status flip. An absent status toggles; speed only
// applies to fans being switched on.
type patchRequest struct {
	Status string  `json:"status"`
	Speed  float64 `json:"speed"`
}

func (a *API) patchDeviceHTTP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["devID"]

	var req patchRequest
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "unable to interpret request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	var dev types.Device
	if req.Status == "" {
		dev, err = a.srv.ToggleDevice(id)
	} else {
		dev, err = a.srv.SetDeviceStatus(id, req.Status, req.Speed)
	}
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, dev, http.StatusOK)
}

func (a *API) deleteDeviceHTTP(w http.ResponseWriter, r *http.Request) {
	if err := a.srv.DeleteDevice(mux.Vars(r)["devID"]); err != nil {
		httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getCamerasHTTP(w http.ResponseWriter, r *http.Request) {
	cams, err := a.srv.Cameras(r.URL.Query().Get("room"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, cams, http.StatusOK)
}

func (a *API) getCameraHTTP(w http.ResponseWriter, r *http.Request) {
	cam, err := a.srv.GetCamera(mux.Vars(r)["camID"])
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, cam, http.StatusOK)
}

func (a *API) putCameraHTTP(w http.ResponseWriter, r *http.Request) {
	var cam types.Camera
	if err := json.NewDecoder(r.Body).Decode(&cam); err != nil {
		http.Error(w, "unable to interpret request body as a camera: "+err.Error(), http.StatusBadRequest)
		return
	}
	cam.ID = mux.Vars(r)["camID"]
	if err := a.srv.UpsertCamera(cam); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, cam, http.StatusOK)
}

func (a *API) patchCameraHTTP(w http.ResponseWriter, r *http.Request) {
	cam, err := a.srv.ToggleCamera(mux.Vars(r)["camID"])
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, cam, http.StatusOK)
}

func (a *API) getUsersHTTP(w http.ResponseWriter, r *http.Request) {
	users, err := a.srv.AllUserIDs()
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, users, http.StatusOK)
}

func (a *API) deleteCameraHTTP(w http.ResponseWriter, r *http.Request) {
	if err := a.srv.DeleteCamera(mux.Vars(r)["camID"]); err != nil {
		httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// imageRequest carries a base64-encoded image frame.
type imageRequest struct {
	Image string `json:"image"`
}

func (req imageRequest) decode() ([]byte, error) {
	if req.Image == "" {
		return nil, fmt.Errorf("missing image field")
	}
	return base64.StdEncoding.DecodeString(req.Image)
}

func (a *API) verifyFaceHTTP(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "unable to interpret request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	image, err := req.decode()
	if err != nil {
		http.Error(w, "unable to decode image: "+err.Error(), http.StatusBadRequest)
		return
	}
	verdict, err := a.srv.VerifyFace(r.Context(), mux.Vars(r)["camID"], image)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, verdict, http.StatusOK)
}

func (a *API) registerFaceHTTP(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "unable to interpret request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	image, err := req.decode()
	if err != nil {
		http.Error(w, "unable to decode image: "+err.Error(), http.StatusBadRequest)
		return
	}
	count, err := a.srv.RegisterFace(r.Context(), mux.Vars(r)["userID"], image)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, map[string]int{"embeddings": count}, http.StatusCreated)
}

type voiceRequest struct {
	Sentence string `json:"sentence"`
}

type voiceResponse struct {
	Entry  types.HistoryEntry `json:"entry"`
	Result hearth.VoiceResult `json:"result"`
}

func (a *API) voiceCommandHTTP(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "unable to interpret request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	entry, result, err := a.srv.HandleVoiceCommand(r.Context(), req.Sentence)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, voiceResponse{Entry: entry, Result: result}, http.StatusOK)
}

func (a *API) getHistoryHTTP(w http.ResponseWriter, r *http.Request) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	entries, err := a.srv.History(skip, limit)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, entries, http.StatusOK)
}

func (a *API) deleteHistoryHTTP(w http.ResponseWriter, r *http.Request) {
	if err := a.srv.DeleteHistory(); err != nil {
		httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getEnvironmentHTTP reports the latest persisted reading of every sensor
// device.
func (a *API) getEnvironmentHTTP(w http.ResponseWriter, r *http.Request) {
	devices, err := a.srv.Devices("")
	if err != nil {
		httpError(w, err)
		return
	}
	readings := make(map[string]types.Value)
	for _, dev := range devices {
		if dev.Sensor {
			readings[dev.Type] = dev.Value
		}
	}
	writeJSON(w, readings, http.StatusOK)
}

// environmentRequest carries forced sensor readings keyed by sensor kind
// ("temperature", "humidity", "light").
type environmentRequest map[string]types.Value

// putEnvironmentHTTP force-writes sensor readings, for exercising condition
// gates without physical sensors.
func (a *API) putEnvironmentHTTP(w http.ResponseWriter, r *http.Request) {
	var req environmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "unable to interpret request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req) == 0 {
		http.Error(w, "no readings provided", http.StatusBadRequest)
		return
	}
	readings := make(map[string]types.Value)
	for kind, value := range req {
		dev, err := a.srv.SetEnvironmentReading(kind, value)
		if err != nil {
			httpError(w, err)
			return
		}
		readings[dev.Type] = dev.Value
	}
	writeJSON(w, readings, http.StatusOK)
}
