package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"greensitter/internal/chat"
	"greensitter/internal/geo"
	"greensitter/internal/models"
	"greensitter/internal/plan"
	"greensitter/internal/post"
	"greensitter/internal/storage"
	"greensitter/internal/storage/zapadapter"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

// Store is the part of the remote data service used outside of chat sessions
type Store interface {
	CreateUser(ctx context.Context, u models.User) error
	FetchPost(ctx context.Context, id string) (models.Post, error)
	FetchPosts(ctx context.Context) ([]models.Post, error)
}

type parsers struct {
	createUserPool         fastjson.ParserPool
	getUserPool            fastjson.ParserPool
	getChatsPool           fastjson.ParserPool
	deleteChatPool         fastjson.ParserPool
	notificationPool       fastjson.ParserPool
	getMessagesPool        fastjson.ParserPool
	createMessagePool      fastjson.ParserPool
	createImageMessagePool fastjson.ParserPool
	createPlanMessagePool  fastjson.ParserPool
	getImagesPool          fastjson.ParserPool
	createPostPool         fastjson.ParserPool
	updatePostPool         fastjson.ParserPool
	postsMapPool           fastjson.ParserPool
}

type handler struct {
	logger   *zap.SugaredLogger
	sessions *chat.Sessions
	store    Store
	editor   *post.Editor
	parsers  parsers
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	streamsDone chan struct{}
	closeOnce   sync.Once
}

func newHandler(logger *zap.SugaredLogger, sessions *chat.Sessions, store Store, editor *post.Editor) *handler {
	return &handler{
		logger:      logger,
		sessions:    sessions,
		store:       store,
		editor:      editor,
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		streamsDone: make(chan struct{}),
	}
}

// parse reads request body with a parser taken from pool.
// The parser must be returned to pool once the values are no longer used.
func parse(w http.ResponseWriter, r *http.Request, pool *fastjson.ParserPool) (*fastjson.Parser, *fastjson.Value, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Can not read request body", http.StatusBadRequest)
		return nil, nil, false
	}

	parser := pool.Get()
	v, err := parser.ParseBytes(body)
	if err != nil {
		pool.Put(parser)
		http.Error(w, "Malformed JSON", http.StatusBadRequest)
		return nil, nil, false
	}

	if v.Type() != fastjson.TypeObject {
		pool.Put(parser)
		http.Error(w, "JSON body must be an object", http.StatusBadRequest)
		return nil, nil, false
	}

	return parser, v, true
}

func stringField(w http.ResponseWriter, v *fastjson.Value, key string) (string, bool) {
	if !v.Exists(key) {
		http.Error(w, "Missing Field \""+key+"\"", http.StatusBadRequest)
		return "", false
	}

	b, err := v.Get(key).StringBytes()
	if err != nil || len(b) == 0 {
		http.Error(w, "Field \""+key+"\" must be a string and have non-zero length", http.StatusBadRequest)
		return "", false
	}

	return string(b), true
}

// optionalString returns def when the field is absent
func optionalString(w http.ResponseWriter, v *fastjson.Value, key, def string) (string, bool) {
	if !v.Exists(key) {
		return def, true
	}

	b, err := v.Get(key).StringBytes()
	if err != nil {
		http.Error(w, "Field \""+key+"\" must be a string", http.StatusBadRequest)
		return "", false
	}

	return string(b), true
}

func intField(w http.ResponseWriter, v *fastjson.Value, key string) (int, bool) {
	if !v.Exists(key) {
		http.Error(w, "Missing Field \""+key+"\"", http.StatusBadRequest)
		return 0, false
	}

	i, err := v.Get(key).Int()
	if err != nil {
		http.Error(w, "Field \""+key+"\" must be an integer value", http.StatusBadRequest)
		return 0, false
	}

	return i, true
}

func boolField(w http.ResponseWriter, v *fastjson.Value, key string) (bool, bool) {
	if !v.Exists(key) {
		http.Error(w, "Missing Field \""+key+"\"", http.StatusBadRequest)
		return false, false
	}

	return optionalBool(w, v, key, false)
}

func optionalBool(w http.ResponseWriter, v *fastjson.Value, key string, def bool) (bool, bool) {
	if !v.Exists(key) {
		return def, true
	}

	b, err := v.Get(key).Bool()
	if err != nil {
		http.Error(w, "Field \""+key+"\" must be a boolean", http.StatusBadRequest)
		return false, false
	}

	return b, true
}

// stringsField reads an array of non-empty strings, an absent optional field gives nil
func stringsField(w http.ResponseWriter, v *fastjson.Value, key string, required bool) ([]string, bool) {
	if !v.Exists(key) {
		if required {
			http.Error(w, "Missing Field \""+key+"\"", http.StatusBadRequest)
			return nil, false
		}
		return nil, true
	}

	values, err := v.Get(key).Array()
	if err != nil {
		http.Error(w, "Field \""+key+"\" must be an array", http.StatusBadRequest)
		return nil, false
	}

	out := make([]string, 0, len(values))
	for _, item := range values {
		b, err := item.StringBytes()
		if err != nil || len(b) == 0 {
			http.Error(w, "Each item in \""+key+"\" array must be a string and have non-zero length", http.StatusBadRequest)
			return nil, false
		}
		out = append(out, string(b))
	}

	return out, true
}

// imagesField reads an array of base64 encoded images
func imagesField(w http.ResponseWriter, v *fastjson.Value, key string, required bool) ([][]byte, bool) {
	encoded, ok := stringsField(w, v, key, required)
	if !ok {
		return nil, false
	}

	if required && len(encoded) == 0 {
		http.Error(w, "Field \""+key+"\" must have at least one item", http.StatusBadRequest)
		return nil, false
	}

	images := make([][]byte, 0, len(encoded))
	for _, e := range encoded {
		data, err := base64.StdEncoding.DecodeString(e)
		if err != nil || len(data) == 0 {
			http.Error(w, "Each item in \""+key+"\" array must be a base64 encoded image", http.StatusBadRequest)
			return nil, false
		}
		images = append(images, data)
	}

	return images, true
}

var errBadLocation = errors.New("bad location")

func parseLocation(v *fastjson.Value) (models.Location, error) {
	if v.Type() != fastjson.TypeObject {
		return models.Location{}, errBadLocation
	}

	lat, long := v.Get("latitude"), v.Get("longitude")
	if lat == nil || long == nil || lat.Type() != fastjson.TypeNumber || long.Type() != fastjson.TypeNumber {
		return models.Location{}, errBadLocation
	}

	return models.Location{
		Latitude:  lat.GetFloat64(),
		Longitude: long.GetFloat64(),
		Address:   string(v.GetStringBytes("address")),
		PlaceName: string(v.GetStringBytes("placeName")),
	}, nil
}

// locationField returns def when the field is absent and nil when it is null
func locationField(w http.ResponseWriter, v *fastjson.Value, key string, def *models.Location) (*models.Location, bool) {
	if !v.Exists(key) {
		return def, true
	}

	lv := v.Get(key)
	if lv.Type() == fastjson.TypeNull {
		return nil, true
	}

	loc, err := parseLocation(lv)
	if err != nil {
		http.Error(w, "Field \""+key+"\" must be an object with numeric \"latitude\" and \"longitude\"", http.StatusBadRequest)
		return nil, false
	}

	return &loc, true
}

func (h *handler) internalError(w http.ResponseWriter, err error) {
	h.logger.Error(err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(payload)
	if err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// session resolves the "user" field to the user's session.
// The returned context carries the user id for storage logs.
func (h *handler) session(w http.ResponseWriter, r *http.Request, v *fastjson.Value) (context.Context, *chat.Session, bool) {
	userID, ok := stringField(w, v, "user")
	if !ok {
		return nil, nil, false
	}

	return h.sessionOf(w, r, userID)
}

func (h *handler) sessionOf(w http.ResponseWriter, r *http.Request, userID string) (context.Context, *chat.Session, bool) {
	ctx := zapadapter.NewContextWithUserID(r.Context(), userID)

	s, err := h.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User does not exist", http.StatusBadRequest)
			return nil, nil, false
		}
		if errors.Is(err, chat.ErrClosed) {
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return nil, nil, false
		}
		h.internalError(w, err)
		return nil, nil, false
	}

	return ctx, s, true
}

// room resolves the "chat" field to a room of the session, loading the room list if it is still empty
func (h *handler) room(ctx context.Context, w http.ResponseWriter, s *chat.Session, v *fastjson.Value) (models.ChatRoom, bool) {
	roomID, ok := stringField(w, v, "chat")
	if !ok {
		return models.ChatRoom{}, false
	}

	room, ok := s.Room(roomID)
	if !ok && !s.HasChats() {
		s.LoadChatRooms(ctx)
		room, ok = s.Room(roomID)
	}
	if !ok {
		http.Error(w, "Chat room does not exist", http.StatusBadRequest)
		return models.ChatRoom{}, false
	}

	return room, true
}

// createUser handles HTTP requests on "/users/add" endpoint
func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.createUserPool)
	if !ok {
		return
	}
	defer h.parsers.createUserPool.Put(parser)

	id, ok := stringField(w, v, "id")
	if !ok {
		return
	}

	nickname, ok := stringField(w, v, "nickname")
	if !ok {
		return
	}

	profileImage, ok := optionalString(w, v, "profileImage", "")
	if !ok {
		return
	}

	platform, ok := optionalString(w, v, "platform", "")
	if !ok {
		return
	}

	aboutMe, ok := optionalString(w, v, "aboutMe", "")
	if !ok {
		return
	}

	seoul := models.SeoulLocation
	location, ok := locationField(w, v, "location", &seoul)
	if !ok {
		return
	}
	if location == nil {
		location = &seoul
	}

	now := h.now()
	u := models.User{
		ID:               id,
		Enabled:          true,
		CreateDate:       now,
		UpdateDate:       now,
		ProfileImage:     profileImage,
		Nickname:         nickname,
		Location:         *location,
		Platform:         platform,
		LevelPoint:       0,
		AboutMe:          aboutMe,
		ChatNotification: true,
	}

	err := h.store.CreateUser(zapadapter.NewContextWithUserID(r.Context(), id), u)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			http.Error(w, "User already exists", http.StatusBadRequest)
			return
		}
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, struct {
		ID string `json:"id"`
	}{ID: id})
}

// getUser handles HTTP requests on "/users/get" endpoint
func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.getUserPool)
	if !ok {
		return
	}
	defer h.parsers.getUserPool.Put(parser)

	_, s, ok := h.session(w, r, v)
	if !ok {
		return
	}

	u, ok := s.User()
	if !ok {
		h.internalError(w, errors.New("session without loaded user"))
		return
	}

	h.writeJSON(w, http.StatusOK, u)
}

type chatRoomsResponse struct {
	Rooms    []models.ChatRoom `json:"rooms"`
	HasChats bool              `json:"hasChats"`
}

func roomsResponse(s *chat.Session) chatRoomsResponse {
	rooms := s.Rooms()
	if rooms == nil {
		rooms = []models.ChatRoom{}
	}
	return chatRoomsResponse{Rooms: rooms, HasChats: len(rooms) > 0}
}

// getChats handles HTTP requests on "/chats/get" endpoint.
// It reloads rooms and the messages of every room before answering.
func (h *handler) getChats(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.getChatsPool)
	if !ok {
		return
	}
	defer h.parsers.getChatsPool.Put(parser)

	ctx, s, ok := h.session(w, r, v)
	if !ok {
		return
	}

	s.LoadChatRooms(ctx)

	h.writeJSON(w, http.StatusOK, roomsResponse(s))
}

// deleteChat handles HTTP requests on "/chats/delete" endpoint
func (h *handler) deleteChat(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.deleteChatPool)
	if !ok {
		return
	}
	defer h.parsers.deleteChatPool.Put(parser)

	ctx, s, ok := h.session(w, r, v)
	if !ok {
		return
	}

	index, ok := intField(w, v, "index")
	if !ok {
		return
	}

	if index < 0 {
		http.Error(w, "Field \"index\" must not be negative", http.StatusBadRequest)
		return
	}

	s.DeleteChatRoom(ctx, index)

	h.writeJSON(w, http.StatusAccepted, roomsResponse(s))
}

// updateNotification handles HTTP requests on "/chats/notification" endpoint
func (h *handler) updateNotification(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.notificationPool)
	if !ok {
		return
	}
	defer h.parsers.notificationPool.Put(parser)

	ctx, s, ok := h.session(w, r, v)
	if !ok {
		return
	}

	room, ok := h.room(ctx, w, s, v)
	if !ok {
		return
	}

	userNotification, ok := boolField(w, v, "userNotification")
	if !ok {
		return
	}

	postUserNotification, ok := boolField(w, v, "postUserNotification")
	if !ok {
		return
	}

	s.UpdateNotification(ctx, room.ID, userNotification, postUserNotification)

	room, _ = s.Room(room.ID)
	h.writeJSON(w, http.StatusAccepted, room)
}

// getMessages handles HTTP requests on "/messages/get" endpoint
func (h *handler) getMessages(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.getMessagesPool)
	if !ok {
		return
	}
	defer h.parsers.getMessagesPool.Put(parser)

	ctx, s, ok := h.session(w, r, v)
	if !ok {
		return
	}

	room, ok := h.room(ctx, w, s, v)
	if !ok {
		return
	}

	messages := s.Messages(room.ID)
	if messages == nil {
		messages = []models.Message{}
	}

	h.writeJSON(w, http.StatusOK, messages)
}

// createMessage handles HTTP requests on "/messages/add" endpoint.
// The message is returned before it is saved and vanishes from the session if the save fails.
func (h *handler) createMessage(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.createMessagePool)
	if !ok {
		return
	}
	defer h.parsers.createMessagePool.Put(parser)

	ctx, s, ok := h.session(w, r, v)
	if !ok {
		return
	}

	room, ok := h.room(ctx, w, s, v)
	if !ok {
		return
	}

	text, ok := stringField(w, v, "text")
	if !ok {
		return
	}

	m, ok := s.SendText(ctx, room.ID, text)
	if !ok {
		http.Error(w, "Message can not be sent", http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusAccepted, m)
}

// createImageMessage handles HTTP requests on "/messages/images" endpoint
func (h *handler) createImageMessage(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.createImageMessagePool)
	if !ok {
		return
	}
	defer h.parsers.createImageMessagePool.Put(parser)

	ctx, s, ok := h.session(w, r, v)
	if !ok {
		return
	}

	room, ok := h.room(ctx, w, s, v)
	if !ok {
		return
	}

	images, ok := imagesField(w, v, "images", true)
	if !ok {
		return
	}

	if !s.SendImages(ctx, room.ID, images) {
		http.Error(w, "Images can not be sent", http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusAccepted, struct {
		Images int `json:"images"`
	}{Images: len(images)})
}

// createPlanMessage handles HTTP requests on "/messages/plan" endpoint.
// The plan date is aligned to the plan interval before sending.
func (h *handler) createPlanMessage(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.createPlanMessagePool)
	if !ok {
		return
	}
	defer h.parsers.createPlanMessagePool.Put(parser)

	ctx, s, ok := h.session(w, r, v)
	if !ok {
		return
	}

	room, ok := h.room(ctx, w, s, v)
	if !ok {
		return
	}

	draft, ok := planDraft(w, v, room)
	if !ok {
		return
	}

	p := draft.Plan(h.now())
	if !s.SendPlan(ctx, room.ID, p) {
		http.Error(w, "Plan can not be sent", http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusAccepted, p)
}

// planDraft fills a scheduling draft from "date", "place" and the notification fields.
// Without "place" the draft keeps the default location unselected.
func planDraft(w http.ResponseWriter, v *fastjson.Value, room models.ChatRoom) (*plan.Draft, bool) {
	rawDate, ok := stringField(w, v, "date")
	if !ok {
		return nil, false
	}

	date, err := time.Parse(time.RFC3339, rawDate)
	if err != nil {
		http.Error(w, "Field \"date\" must be an RFC 3339 timestamp", http.StatusBadRequest)
		return nil, false
	}

	draft := plan.NewDraft(date)

	if v.Exists("place") {
		place, ok := locationField(w, v, "place", draft.Place)
		if !ok {
			return nil, false
		}
		draft.SetPlace(place)
	}

	if draft.OwnerNotification, ok = optionalBool(w, v, "ownerNotification", room.PostUserNotification); !ok {
		return nil, false
	}
	if draft.SitterNotification, ok = optionalBool(w, v, "sitterNotification", room.UserNotification); !ok {
		return nil, false
	}

	return draft, true
}

type imagesResponse struct {
	Images []string `json:"images"`
}

func encodeImages(images [][]byte) imagesResponse {
	out := imagesResponse{Images: make([]string, 0, len(images))}
	for _, img := range images {
		out.Images = append(out.Images, base64.StdEncoding.EncodeToString(img))
	}
	return out
}

// getImages handles HTTP requests on "/images/get" endpoint.
// Only images sent in the user's chat rooms can be fetched.
// Images that fail to download are left out, so the result may be shorter than "paths".
func (h *handler) getImages(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.getImagesPool)
	if !ok {
		return
	}
	defer h.parsers.getImagesPool.Put(parser)

	ctx, s, ok := h.session(w, r, v)
	if !ok {
		return
	}

	paths, ok := stringsField(w, v, "paths", true)
	if !ok {
		return
	}

	if foreign := s.ForeignImages(ctx, paths); len(foreign) > 0 {
		h.logger.Errorf("User (id: %s) requested %d images outside of own chat rooms", s.UserID(), len(foreign))
		http.Error(w, "Image does not belong to user's chat rooms", http.StatusForbidden)
		return
	}

	h.writeJSON(w, http.StatusOK, encodeImages(s.LoadChatImages(ctx, paths)))
}

// createPost handles HTTP requests on "/posts/add" endpoint
func (h *handler) createPost(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.createPostPool)
	if !ok {
		return
	}
	defer h.parsers.createPostPool.Put(parser)

	ctx, s, ok := h.session(w, r, v)
	if !ok {
		return
	}

	author, ok := s.User()
	if !ok {
		h.internalError(w, errors.New("session without loaded user"))
		return
	}

	rawType, ok := stringField(w, v, "postType")
	if !ok {
		return
	}

	postType, err := models.ParsePostType(rawType)
	if err != nil {
		http.Error(w, "Field \"postType\" must be one of \"lookingForSitter\", \"offeringToSitter\"", http.StatusBadRequest)
		return
	}

	title, ok := stringField(w, v, "postTitle")
	if !ok {
		return
	}

	body, ok := optionalString(w, v, "postBody", "")
	if !ok {
		return
	}

	location, ok := locationField(w, v, "location", nil)
	if !ok {
		return
	}

	images, ok := imagesField(w, v, "images", false)
	if !ok {
		return
	}

	p := models.Post{
		UserID:           author.ID,
		ProfileImage:     author.ProfileImage,
		Nickname:         author.Nickname,
		UserLocation:     author.Location,
		UserNotification: author.ChatNotification,
		PostType:         postType,
		PostTitle:        title,
		PostBody:         body,
		Location:         location,
	}

	p, err = h.editor.Create(ctx, p, images)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, p)
}

// updatePost handles HTTP requests on "/posts/update" endpoint.
// Absent fields keep their stored values.
func (h *handler) updatePost(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.updatePostPool)
	if !ok {
		return
	}
	defer h.parsers.updatePostPool.Put(parser)

	ctx, s, ok := h.session(w, r, v)
	if !ok {
		return
	}

	postID, ok := stringField(w, v, "post")
	if !ok {
		return
	}

	p, err := h.store.FetchPost(ctx, postID)
	if err != nil {
		if errors.Is(err, storage.ErrPostNotExist) {
			http.Error(w, "Post does not exist", http.StatusBadRequest)
			return
		}
		h.internalError(w, err)
		return
	}

	if p.UserID != s.UserID() {
		http.Error(w, "Post belongs to another user", http.StatusForbidden)
		return
	}

	if p.PostTitle, ok = optionalString(w, v, "postTitle", p.PostTitle); !ok {
		return
	}
	if p.PostBody, ok = optionalString(w, v, "postBody", p.PostBody); !ok {
		return
	}

	rawType, ok := optionalString(w, v, "postType", string(p.PostType))
	if !ok {
		return
	}
	if p.PostType, err = models.ParsePostType(rawType); err != nil {
		http.Error(w, "Field \"postType\" must be one of \"lookingForSitter\", \"offeringToSitter\"", http.StatusBadRequest)
		return
	}

	rawStatus, ok := optionalString(w, v, "postStatus", string(p.PostStatus))
	if !ok {
		return
	}
	if p.PostStatus, err = models.ParsePostStatus(rawStatus); err != nil {
		http.Error(w, "Field \"postStatus\" must be one of \"beforeTrade\", \"inTrade\", \"completedTrade\"", http.StatusBadRequest)
		return
	}

	if p.Location, ok = locationField(w, v, "location", p.Location); !ok {
		return
	}

	removed, ok := stringsField(w, v, "removed", false)
	if !ok {
		return
	}

	images, ok := imagesField(w, v, "images", false)
	if !ok {
		return
	}

	p, err = h.editor.Update(ctx, p, removed, images)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

// postsMap handles HTTP requests on "/posts/map" endpoint
func (h *handler) postsMap(w http.ResponseWriter, r *http.Request) {
	parser, v, ok := parse(w, r, &h.parsers.postsMapPool)
	if !ok {
		return
	}
	defer h.parsers.postsMapPool.Put(parser)

	radius := geo.DefaultRadius
	if v.Exists("radius") {
		rv := v.Get("radius")
		if rv.Type() != fastjson.TypeNumber || rv.GetFloat64() <= 0 {
			http.Error(w, "Field \"radius\" must be a positive number", http.StatusBadRequest)
			return
		}
		radius = rv.GetFloat64()
	}

	posts, err := h.store.FetchPosts(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.rngMu.Lock()
	markers := geo.Markers(posts, radius, h.rng)
	h.rngMu.Unlock()

	h.writeJSON(w, http.StatusOK, markers)
}
