// Package db is the hearth storage collaborator: rooms, devices, cameras,
// per-user face embeddings and voice history, kept in a sqlite database
// accessed through Jason Moiron's sqlx API (see: github.com/jmoiron/sqlx).
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/jmoiron/sqlx"
	log "gopkg.in/inconshreveable/log15.v2"
	logext "gopkg.in/inconshreveable/log15.v2/ext"

	rawsql "github.com/hearthd/hearth/db/sql"
	"github.com/hearthd/hearth/logging"
	"github.com/hearthd/hearth/types"

	// imports sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
)

// Log is used to log messages for the db package. Logs are disabled by
// default; use hearth/logging.SetLevelStr() to set log levels for all
// packages.
var Log = logging.Log.New("pkg", "db")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// A HomeDB manages interactions with the underlying hearth database.
type HomeDB struct {
	dbpath   string
	tempFile *os.File
	log      log.Logger
}

// Open opens the hearth database at the provided file path, creating and
// initializing it with the hearth schema if needed. An empty path uses a
// temporary file.
func Open(pathToDBFile string) (*HomeDB, error) {
	var tempFile *os.File // will be populated if caller requests a temporary file
	switch pathToDBFile {
	case "":
		file, err := ioutil.TempFile(os.TempDir(), "hearthdb_")
		if err != nil {
			return nil, fmt.Errorf("could not open temporary DB file: %v", err)
		}
		tempFile = file
		pathToDBFile = file.Name()
	case ":memory:":
		return nil, fmt.Errorf("HomeDB cannot be opened with :memory:")
	}

	db, err := sqlx.Connect("sqlite3", pathToDBFile)
	if err != nil {
		Log.Error("could not open database", "err", err, "filename", pathToDBFile)
		return nil, fmt.Errorf("could not open database at path %v: %v", pathToDBFile, err)
	}
	defer db.Close()

	if _, err := db.Exec(rawsql.InitSQL); err != nil {
		return nil, fmt.Errorf("error initializing hearth DB: %v", err)
	}

	return &HomeDB{
		dbpath:   pathToDBFile,
		tempFile: tempFile,
		log:      Log.New("obj", "home_db", "id", logext.RandId(8)),
	}, nil
}

// DB returns a connection to the hearth database.
func (hdb *HomeDB) DB() (*sqlx.DB, error) {
	return sqlx.Connect("sqlite3", hdb.dbpath)
}

// Close closes any temporary files that were used.
func (hdb *HomeDB) Close() error {
	if hdb.tempFile != nil {
		return hdb.tempFile.Close()
	}
	return nil
}

//
// Rooms
//

// CreateRoom inserts a room.
func (hdb *HomeDB) CreateRoom(room types.Room) error {
	db, err := hdb.DB()
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec("INSERT INTO room (id, name, icon) VALUES (?, ?, ?)", room.ID, room.Name, room.Icon)
	return err
}

// GetRoomByName returns the room with the given name, or ErrNotFound.
func (hdb *HomeDB) GetRoomByName(name string) (types.Room, error) {
	db, err := hdb.DB()
	if err != nil {
		return types.Room{}, err
	}
	defer db.Close()
	var room types.Room
	if err := db.Get(&room, "SELECT * FROM room WHERE name=? LIMIT 1", name); err != nil {
		if err == sql.ErrNoRows {
			return types.Room{}, ErrNotFound
		}
		return types.Room{}, err
	}
	return room, nil
}

// GetRoom returns the room with the given id, or ErrNotFound.
func (hdb *HomeDB) GetRoom(id string) (types.Room, error) {
	db, err := hdb.DB()
	if err != nil {
		return types.Room{}, err
	}
	defer db.Close()
	var room types.Room
	if err := db.Get(&room, "SELECT * FROM room WHERE id=? LIMIT 1", id); err != nil {
		if err == sql.ErrNoRows {
			return types.Room{}, ErrNotFound
		}
		return types.Room{}, err
	}
	return room, nil
}

// UpdateRoom rewrites an existing room's fields, or ErrNotFound.
func (hdb *HomeDB) UpdateRoom(room types.Room) error {
	db, err := hdb.DB()
	if err != nil {
		return err
	}
	defer db.Close()
	res, err := db.Exec("UPDATE room SET name=?, icon=? WHERE id=?", room.Name, room.Icon, room.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRoom removes a room, or ErrNotFound.
func (hdb *HomeDB) DeleteRoom(id string) error {
	db, err := hdb.DB()
	if err != nil {
		return err
	}
	defer db.Close()
	res, err := db.Exec("DELETE FROM room WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Rooms returns all rooms.
func (hdb *HomeDB) Rooms() ([]types.Room, error) {
	db, err := hdb.DB()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	var rooms []types.Room
	if err := db.Select(&rooms, "SELECT * FROM room ORDER BY name"); err != nil {
		return nil, err
	}
	return rooms, nil
}

//
// Devices
//

// Devices returns all devices, optionally filtered by room.
func (hdb *HomeDB) Devices(roomID string) ([]types.Device, error) {
	db, err := hdb.DB()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	var devices []types.Device
	if roomID == "" {
		err = db.Select(&devices, "SELECT * FROM device ORDER BY type")
	} else {
		err = db.Select(&devices, "SELECT * FROM device WHERE room_id=? ORDER BY type", roomID)
	}
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// GetDevice returns the device with the given id, or ErrNotFound.
func (hdb *HomeDB) GetDevice(id string) (types.Device, error) {
	db, err := hdb.DB()
	if err != nil {
		return types.Device{}, err
	}
	defer db.Close()
	return getDevice(db, "SELECT * FROM device WHERE id=? LIMIT 1", id)
}

// GetDeviceByType returns the device with the given type string (feed key),
// or ErrNotFound.
func (hdb *HomeDB) GetDeviceByType(deviceType string) (types.Device, error) {
	db, err := hdb.DB()
	if err != nil {
		return types.Device{}, err
	}
	defer db.Close()
	return getDevice(db, "SELECT * FROM device WHERE type=? LIMIT 1", deviceType)
}

func getDevice(db *sqlx.DB, query string, arg interface{}) (types.Device, error) {
	var dev types.Device
	if err := db.Get(&dev, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return types.Device{}, ErrNotFound
		}
		return types.Device{}, err
	}
	return dev, nil
}

// UpsertDevice inserts the device, or updates every field if a device with
// the same id already exists.
func (hdb *HomeDB) UpsertDevice(d types.Device) error {
	db, err := hdb.DB()
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.Exec("UPDATE device SET name=?, type=?, sensor=?, room_id=?, icon=?, status=?, value=? WHERE id=?",
		d.Name, d.Type, d.Sensor, d.RoomID, d.Icon, d.Status, d.Value, d.ID)
	if err != nil {
		return fmt.Errorf("error updating device: %v", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("error getting row count (required for update): %v", err)
	} else if n == 0 {
		_, err := db.Exec("INSERT INTO device (id, name, type, sensor, room_id, icon, status, value) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			d.ID, d.Name, d.Type, d.Sensor, d.RoomID, d.Icon, d.Status, d.Value)
		if err != nil {
			return fmt.Errorf("error inserting device: %v", err)
		}
		hdb.log.Debug("inserted new device", "id", d.ID, "type", d.Type)
		return nil
	}
	hdb.log.Debug("updated existing device", "id", d.ID, "type", d.Type)
	return nil
}

// SaveDeviceState commits a device's status and value in a single
// transaction, so a reader never observes one without the other.
func (hdb *HomeDB) SaveDeviceState(id, status string, value types.Value) error {
	db, err := hdb.DB()
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %v", err)
	}
	res, err := tx.Exec("UPDATE device SET status=?, value=? WHERE id=?", status, value, id)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error updating device state: %v", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		tx.Rollback()
		return err
	} else if n == 0 {
		tx.Rollback()
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %v", err)
	}
	return nil
}

// DeleteDevice removes a device row.
func (hdb *HomeDB) DeleteDevice(id string) error {
	db, err := hdb.DB()
	if err != nil {
		return err
	}
	defer db.Close()
	res, err := db.Exec("DELETE FROM device WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

//
// Cameras
//

// Cameras returns all cameras with their registered user ids.
func (hdb *HomeDB) Cameras(roomID string) ([]types.Camera, error) {
	db, err := hdb.DB()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	var cameras []types.Camera
	if roomID == "" {
		err = db.Select(&cameras, "SELECT * FROM camera ORDER BY name")
	} else {
		err = db.Select(&cameras, "SELECT * FROM camera WHERE room_id=? ORDER BY name", roomID)
	}
	if err != nil {
		return nil, err
	}
	for i := range cameras {
		if cameras[i].UserIDs, err = cameraUserIDs(db, cameras[i].ID); err != nil {
			return nil, err
		}
	}
	return cameras, nil
}

// GetCamera returns the camera with the given id, or ErrNotFound.
func (hdb *HomeDB) GetCamera(id string) (types.Camera, error) {
	db, err := hdb.DB()
	if err != nil {
		return types.Camera{}, err
	}
	defer db.Close()
	var cam types.Camera
	if err := db.Get(&cam, "SELECT * FROM camera WHERE id=? LIMIT 1", id); err != nil {
		if err == sql.ErrNoRows {
			return types.Camera{}, ErrNotFound
		}
		return types.Camera{}, err
	}
	if cam.UserIDs, err = cameraUserIDs(db, cam.ID); err != nil {
		return types.Camera{}, err
	}
	return cam, nil
}

// FirstCamera returns an arbitrary camera (the engine currently manages one
// camera per home), or ErrNotFound.
func (hdb *HomeDB) FirstCamera() (types.Camera, error) {
	db, err := hdb.DB()
	if err != nil {
		return types.Camera{}, err
	}
	defer db.Close()
	var cam types.Camera
	if err := db.Get(&cam, "SELECT * FROM camera ORDER BY id LIMIT 1"); err != nil {
		if err == sql.ErrNoRows {
			return types.Camera{}, ErrNotFound
		}
		return types.Camera{}, err
	}
	if cam.UserIDs, err = cameraUserIDs(db, cam.ID); err != nil {
		return types.Camera{}, err
	}
	return cam, nil
}

func cameraUserIDs(db *sqlx.DB, cameraID string) ([]string, error) {
	var ids []string
	err := db.Select(&ids, "SELECT user_id FROM camera_user WHERE camera_id=? ORDER BY position", cameraID)
	return ids, err
}

// UpsertCamera inserts or updates a camera and replaces its registered user
// list, all in one transaction.
func (hdb *HomeDB) UpsertCamera(cam types.Camera) error {
	db, err := hdb.DB()
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %v", err)
	}
	res, err := tx.Exec("UPDATE camera SET name=?, room_id=?, active=? WHERE id=?",
		cam.Name, cam.RoomID, cam.Active, cam.ID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error updating camera: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.Exec("INSERT INTO camera (id, name, room_id, active) VALUES (?, ?, ?, ?)",
			cam.ID, cam.Name, cam.RoomID, cam.Active); err != nil {
			tx.Rollback()
			return fmt.Errorf("error inserting camera: %v", err)
		}
	}
	if _, err := tx.Exec("DELETE FROM camera_user WHERE camera_id=?", cam.ID); err != nil {
		tx.Rollback()
		return err
	}
	for i, userID := range cam.UserIDs {
		if _, err := tx.Exec("INSERT INTO camera_user (camera_id, user_id, position) VALUES (?, ?, ?)",
			cam.ID, userID, i); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %v", err)
	}
	return nil
}

// SetCameraActive flips a camera's active flag.
func (hdb *HomeDB) SetCameraActive(id string, active bool) error {
	db, err := hdb.DB()
	if err != nil {
		return err
	}
	defer db.Close()
	res, err := db.Exec("UPDATE camera SET active=? WHERE id=?", active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCamera removes a camera and its user registrations.
func (hdb *HomeDB) DeleteCamera(id string) error {
	db, err := hdb.DB()
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.Exec("DELETE FROM camera_user WHERE camera_id=?", id); err != nil {
		return err
	}
	res, err := db.Exec("DELETE FROM camera WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

//
// Face embeddings
//

// AddEmbedding appends an embedding to a user's enrolled list. Embeddings are
// immutable once stored.
func (hdb *HomeDB) AddEmbedding(userID string, emb types.Embedding) error {
	db, err := hdb.DB()
	if err != nil {
		return err
	}
	defer db.Close()
	asJSON, err := json.Marshal(emb)
	if err != nil {
		return fmt.Errorf("could not marshal embedding: %v", err)
	}
	_, err = db.Exec("INSERT INTO face_embedding (user_id, vector) VALUES (?, ?)", userID, string(asJSON))
	return err
}

// EmbeddingsForUser returns every embedding enrolled for the user, in
// enrollment order. A user with no embeddings yields ErrNotFound.
func (hdb *HomeDB) EmbeddingsForUser(userID string) ([]types.Embedding, error) {
	db, err := hdb.DB()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	var rows []string
	if err := db.Select(&rows, "SELECT vector FROM face_embedding WHERE user_id=? ORDER BY id", userID); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	embeddings := make([]types.Embedding, 0, len(rows))
	for _, raw := range rows {
		var emb types.Embedding
		if err := json.Unmarshal([]byte(raw), &emb); err != nil {
			return nil, fmt.Errorf("could not unmarshal stored embedding: %v", err)
		}
		embeddings = append(embeddings, emb)
	}
	return embeddings, nil
}

// AllUserIDs returns the distinct user ids with at least one enrolled
// embedding.
func (hdb *HomeDB) AllUserIDs() ([]string, error) {
	db, err := hdb.DB()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	var ids []string
	if err := db.Select(&ids, "SELECT DISTINCT user_id FROM face_embedding ORDER BY user_id"); err != nil {
		return nil, err
	}
	return ids, nil
}

//
// Voice history
//

// AddHistory records a handled voice command and its final response label.
func (hdb *HomeDB) AddHistory(request, response string) (types.HistoryEntry, error) {
	db, err := hdb.DB()
	if err != nil {
		return types.HistoryEntry{}, err
	}
	defer db.Close()
	res, err := db.Exec("INSERT INTO voice_history (request, response) VALUES (?, ?)", request, response)
	if err != nil {
		return types.HistoryEntry{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.HistoryEntry{}, err
	}
	var entry types.HistoryEntry
	if err := db.Get(&entry, "SELECT * FROM voice_history WHERE id=?", id); err != nil {
		return types.HistoryEntry{}, err
	}
	return entry, nil
}

// History returns recorded voice commands, newest last.
func (hdb *HomeDB) History(skip, limit int) ([]types.HistoryEntry, error) {
	db, err := hdb.DB()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if limit <= 0 {
		limit = 100
	}
	var entries []types.HistoryEntry
	if err := db.Select(&entries, "SELECT * FROM voice_history ORDER BY id LIMIT ? OFFSET ?", limit, skip); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteHistory removes all recorded voice commands.
func (hdb *HomeDB) DeleteHistory() error {
	db, err := hdb.DB()
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec("DELETE FROM voice_history")
	return err
}
