package syncer

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"atelier-dm/internal/domain"
	"atelier-dm/internal/feed"
	"atelier-dm/internal/pubsub"
)

// Interfaces de lectura que consume el fetch batcheado. Las implementan los
// repositorios de Postgres; los tests usan dobles chicos.
type ConversationReader interface {
	ListByParticipant(ctx context.Context, userID string) ([]domain.Conversation, error)
}

type ProfileReader interface {
	ListByIDs(ctx context.Context, ids []string) ([]domain.User, error)
}

type MessageReader interface {
	ListByConversationIDs(ctx context.Context, conversationIDs []string) ([]domain.Message, error)
}

// Options ajusta la ventana del throttle y el retraso del refetch que
// agenda un evento de mensaje nuevo.
type Options struct {
	FetchThrottle time.Duration
	RefreshDelay  time.Duration
}

const refetchKey = "syncer:refetch"

// Syncer es la capa de sincronizacion del cliente: mantiene la lista de
// ConversationView mas-reciente-primero, el agregado unreadTotal y el
// puntero de conversacion activa, y los mantiene consistentes frente a
// eventos realtime, carreras de red y mutaciones optimistas.
//
// unreadTotal es siempre derivado: cada camino de mutacion lo recalcula
// desde las vistas, nunca se incrementa ni decrementa suelto.
type Syncer struct {
	logger        *zap.Logger
	conversations ConversationReader
	profiles      ProfileReader
	messages      MessageReader
	feed          feed.Feed
	broker        *pubsub.Broker
	sched         *Scheduler

	throttle     time.Duration
	refreshDelay time.Duration
	now          func() time.Time

	mu          sync.Mutex
	identity    string
	views       []domain.ConversationView
	unreadTotal int
	activeID    string
	loading     bool
	lastErr     error
	fetching    bool
	lastFetch   time.Time
	subs        []feed.Subscription
}

func New(
	logger *zap.Logger,
	conversations ConversationReader,
	profiles ProfileReader,
	messages MessageReader,
	fd feed.Feed,
	broker *pubsub.Broker,
	opts Options,
) *Syncer {
	if opts.FetchThrottle <= 0 {
		opts.FetchThrottle = time.Second
	}
	if opts.RefreshDelay <= 0 {
		opts.RefreshDelay = time.Second
	}
	if broker == nil {
		broker = pubsub.NewBroker()
	}
	return &Syncer{
		logger:        logger,
		conversations: conversations,
		profiles:      profiles,
		messages:      messages,
		feed:          fd,
		broker:        broker,
		sched:         NewScheduler(),
		throttle:      opts.FetchThrottle,
		refreshDelay:  opts.RefreshDelay,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Broker expone el broker de señales para que la UI se suscriba.
func (s *Syncer) Broker() *pubsub.Broker {
	return s.broker
}

// Identity devuelve la identidad activa actual.
func (s *Syncer) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetIdentity cambia la identidad activa: tira abajo la suscripcion al
// feed, limpia la cache, se resuscribe y hace la carga inicial forzada.
func (s *Syncer) SetIdentity(ctx context.Context, userID string) error {
	s.mu.Lock()
	if userID == s.identity {
		s.mu.Unlock()
		return nil
	}
	old := s.subs
	s.subs = nil
	s.identity = userID
	s.views = nil
	s.unreadTotal = 0
	s.activeID = ""
	s.lastErr = nil
	s.fetching = false
	s.lastFetch = time.Time{}
	s.mu.Unlock()

	for _, sub := range old {
		sub.Unsubscribe()
	}
	s.sched.Cancel(refetchKey)

	if userID == "" {
		s.broker.Publish(pubsub.TopicConversations)
		return nil
	}

	msgSub, err := s.feed.Subscribe(feed.TableMessages, feed.EventInsert, s.onMessageInserted)
	if err != nil {
		s.dropIdentity(userID)
		return domain.StorageError(err)
	}
	convSub, err := s.feed.Subscribe(feed.TableConversations, feed.EventInsert, s.onConversationInserted)
	if err != nil {
		msgSub.Unsubscribe()
		s.dropIdentity(userID)
		return domain.StorageError(err)
	}

	s.mu.Lock()
	s.subs = []feed.Subscription{msgSub, convSub}
	s.mu.Unlock()

	return s.FetchAll(ctx, true)
}

// dropIdentity deshace un cambio de identidad que no llego a suscribirse.
// Dejar la identidad puesta sin suscripcion dejaria al syncer mudo: ningun
// request posterior del mismo usuario volveria a intentar la suscripcion.
func (s *Syncer) dropIdentity(userID string) {
	s.mu.Lock()
	if s.identity == userID {
		s.identity = ""
	}
	s.mu.Unlock()
}

// Close corta la suscripcion al feed y cancela los timers pendientes.
func (s *Syncer) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	s.sched.Stop()
}

// FetchAll reconstruye la cache completa desde el store. Dos guardas para
// llamadas no forzadas: el flag de fetch en vuelo y el throttle de ventana
// minima. force (carga inicial, refresh manual) saltea ambas.
func (s *Syncer) FetchAll(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.identity == "" {
		s.mu.Unlock()
		return nil
	}
	if s.fetching && !force {
		s.mu.Unlock()
		return nil
	}
	started := s.now()
	if !force && started.Sub(s.lastFetch) < s.throttle {
		s.mu.Unlock()
		return nil
	}
	s.fetching = true
	s.loading = true
	s.lastFetch = started
	identity := s.identity
	s.mu.Unlock()

	views, err := s.loadViews(ctx, identity)

	s.mu.Lock()
	s.fetching = false
	s.loading = false
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return err
	}
	// Si otro fetch arranco despues del nuestro, su resultado manda.
	if s.lastFetch.After(started) || s.identity != identity {
		s.mu.Unlock()
		return nil
	}
	s.views = views
	s.recomputeUnreadLocked()
	s.lastErr = nil
	s.mu.Unlock()

	s.broker.Publish(pubsub.TopicConversations)
	return nil
}

// loadViews hace las tres lecturas batcheadas: conversaciones de la
// identidad, perfiles de todos los partners y mensajes de todas las
// conversaciones, y arma las vistas agrupando del lado del cliente.
func (s *Syncer) loadViews(ctx context.Context, identity string) ([]domain.ConversationView, error) {
	convs, err := s.conversations.ListByParticipant(ctx, identity)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	if len(convs) == 0 {
		return []domain.ConversationView{}, nil
	}

	convIDs := make([]string, 0, len(convs))
	partnerIDs := make([]string, 0, len(convs))
	seen := make(map[string]bool, len(convs))
	for _, conv := range convs {
		convIDs = append(convIDs, conv.ID)
		if pid := conv.OtherParticipant(identity); pid != "" && !seen[pid] {
			seen[pid] = true
			partnerIDs = append(partnerIDs, pid)
		}
	}

	profiles, err := s.profiles.ListByIDs(ctx, partnerIDs)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	profileByID := make(map[string]domain.User, len(profiles))
	for _, p := range profiles {
		profileByID[p.ID] = p
	}

	msgs, err := s.messages.ListByConversationIDs(ctx, convIDs)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	byConv := make(map[string][]domain.Message, len(convs))
	for _, msg := range msgs {
		byConv[msg.ConversationID] = append(byConv[msg.ConversationID], msg)
	}

	views := make([]domain.ConversationView, 0, len(convs))
	for _, conv := range convs {
		view := domain.ConversationView{Conversation: conv}

		pid := conv.OtherParticipant(identity)
		if partner, ok := profileByID[pid]; ok {
			view.Partner = partner
		} else {
			// Perfil faltante: se degrada a un placeholder con el id,
			// el proximo fetch lo completa si aparece.
			view.Partner = domain.User{ID: pid}
			s.logger.Warn("partner profile missing", zap.String("partner_id", pid), zap.String("conversation_id", conv.ID))
		}

		grouped := byConv[conv.ID]
		if len(grouped) > 0 {
			// Los mensajes llegan del mas reciente al mas viejo: el
			// primero del grupo es el ultimo mensaje.
			last := grouped[0]
			view.LastMessage = &last
			for _, msg := range grouped {
				if msg.Unread(identity) {
					view.UnreadCount++
				}
			}
		}
		views = append(views, view)
	}

	sortViews(views)
	return views, nil
}

// onMessageInserted agenda un refetch corto para conversaciones ya
// cacheadas. Al disparar, un fetch mas reciente que el evento lo suprime.
func (s *Syncer) onMessageInserted(ev feed.Event) {
	var p feed.MessageInserted
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		s.logger.Warn("message event decode failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	identity := s.identity
	known := s.hasViewLocked(p.ConversationID)
	s.mu.Unlock()

	if identity == "" || !known {
		return
	}

	eventAt := s.now()
	s.sched.Schedule(refetchKey, s.refreshDelay, func() {
		s.mu.Lock()
		superseded := s.lastFetch.After(eventAt)
		s.mu.Unlock()
		if superseded {
			return
		}
		if err := s.FetchAll(context.Background(), true); err != nil {
			s.logger.Warn("scheduled refetch failed", zap.Error(err))
		}
	})
}

// onConversationInserted refetchea de inmediato si la identidad activa es
// participante del hilo nuevo.
func (s *Syncer) onConversationInserted(ev feed.Event) {
	var p feed.ConversationInserted
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		s.logger.Warn("conversation event decode failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()
	if identity == "" {
		return
	}

	mine := false
	for _, pid := range p.Participants {
		if pid == identity {
			mine = true
			break
		}
	}
	if !mine {
		return
	}

	if err := s.FetchAll(context.Background(), true); err != nil {
		s.logger.Warn("conversation refetch failed", zap.Error(err))
	}
}

func (s *Syncer) hasViewLocked(conversationID string) bool {
	for i := range s.views {
		if s.views[i].ID == conversationID {
			return true
		}
	}
	return false
}

func (s *Syncer) recomputeUnreadLocked() {
	total := 0
	for i := range s.views {
		total += s.views[i].UnreadCount
	}
	s.unreadTotal = total
}

func sortViews(views []domain.ConversationView) {
	sort.SliceStable(views, func(i, j int) bool {
		return viewRecency(views[i]).After(viewRecency(views[j]))
	})
}

func viewRecency(v domain.ConversationView) time.Time {
	if v.LastMessage != nil && v.LastMessage.CreatedAt.After(v.LastMessageAt) {
		return v.LastMessage.CreatedAt
	}
	return v.LastMessageAt
}
