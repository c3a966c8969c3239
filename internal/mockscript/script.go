// Package mockscript is an in-memory stand-in for the remote scripting
// backend. It answers the same action calls the gateway forwards, so the
// gateway can be run locally without the real deployment.
package mockscript

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Slot is one bookable appointment time.
type Slot struct {
	ID    string `json:"id"`
	Start string `json:"start"`
}

// UserInfo is the patient data sent with a booking.
type UserInfo struct {
	Nombre   string `json:"nombre"`
	Apellido string `json:"apellido"`
	DNI      string `json:"dni"`
	Email    string `json:"email"`
	Whatsapp string `json:"whatsapp"`
}

// Appointment is a booked slot.
type Appointment struct {
	EventID  string   `json:"eventId"`
	SlotID   string   `json:"slotId"`
	Start    string   `json:"start"`
	UserInfo UserInfo `json:"userInfo"`
}

type account struct {
	data     map[string]any
	password string
}

// Script holds the backend state.
type Script struct {
	mu           sync.Mutex
	slots        []Slot
	appointments map[string]Appointment
	users        map[string]UserInfo
	referrals    []map[string]any
	blocked      map[string]bool
	accounts     map[string]map[string]account // role -> email -> account
	nextID       int
	logger       *log.Logger
}

// New returns a Script offering slots.
func New(slots []Slot, logger *log.Logger) *Script {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Script{
		slots:        slots,
		appointments: map[string]Appointment{},
		users:        map[string]UserInfo{},
		blocked:      map[string]bool{},
		accounts:     map[string]map[string]account{"professional": {}, "preventivista": {}},
		logger:       logger,
	}
}

// WeekdaySlots builds half-hour slots from 09:00 to 12:00 on the next
// n weekdays after from.
func WeekdaySlots(from time.Time, n int) []Slot {
	var out []Slot
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for len(out) < n*6 {
		day = day.AddDate(0, 0, 1)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for i := 0; i < 6; i++ {
			start := day.Add(9*time.Hour + time.Duration(i)*30*time.Minute)
			out = append(out, Slot{
				ID:    start.Format("20060102-1504"),
				Start: start.Format(time.RFC3339),
			})
		}
	}
	return out
}

// call is the decoded action request: the tag plus every other field raw.
type call struct {
	action string
	fields map[string]json.RawMessage
}

func (c call) str(name string) string {
	var s string
	_ = json.Unmarshal(c.fields[name], &s)
	return s
}

func (c call) object(name string) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(c.fields[name], &m)
	return m
}

func ok(extra map[string]any) map[string]any {
	out := map[string]any{"status": "success"}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func fail(msg string) map[string]any {
	return map[string]any{"status": "error", "message": msg}
}

// ServeHTTP answers one action call. Like the real backend, business
// errors come back as 200 with status "error".
func (s *Script) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	c := call{fields: fields}
	_ = json.Unmarshal(fields["action"], &c.action)

	s.logger.Printf("mockscript: %s", c.action)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.do(c))
}

// do runs one action.
func (s *Script) do(c call) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.action {
	case "getNextAvailable":
		return ok(map[string]any{"slots": s.available()})
	case "bookAppointment":
		return s.book(c)
	case "getAllAppointments":
		return ok(map[string]any{"appointments": s.sortedAppointments()})
	case "getAllReferrals":
		return ok(map[string]any{"referrals": append([]map[string]any{}, s.referrals...)})
	case "getUserDataByDNI":
		u, found := s.users[c.str("dni")]
		if !found {
			return map[string]any{"status": "notFound"}
		}
		return ok(map[string]any{"user": u})
	case "cancelAppointment":
		id := c.str("eventId")
		if _, found := s.appointments[id]; !found {
			return fail("turno inexistente")
		}
		delete(s.appointments, id)
		return ok(nil)
	case "registerProfessional":
		return s.register("professional", c.object("professionalData"))
	case "loginProfessional":
		return s.login("professional", c.object("credentials"))
	case "registerPreventivista":
		return s.register("preventivista", c.object("preventivistaData"))
	case "loginPreventivista":
		return s.login("preventivista", c.object("credentials"))
	case "createReferral":
		ref := c.object("referralData")
		if ref == nil {
			return fail("derivación vacía")
		}
		s.referrals = append(s.referrals, ref)
		return ok(nil)
	case "getBlockedDays":
		days := make([]string, 0, len(s.blocked))
		for d := range s.blocked {
			days = append(days, d)
		}
		sort.Strings(days)
		return ok(map[string]any{"days": days})
	case "blockDay":
		d := c.str("date")
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return fail("fecha inválida")
		}
		s.blocked[d] = true
		return ok(nil)
	}
	return fail("unknown action")
}

func (s *Script) taken() map[string]bool {
	t := make(map[string]bool, len(s.appointments))
	for _, a := range s.appointments {
		t[a.SlotID] = true
	}
	return t
}

func (s *Script) available() []Slot {
	taken := s.taken()
	out := []Slot{}
	for _, sl := range s.slots {
		if taken[sl.ID] || s.blocked[dayOf(sl)] {
			continue
		}
		out = append(out, sl)
	}
	return out
}

func dayOf(sl Slot) string {
	if len(sl.Start) < len(time.DateOnly) {
		return ""
	}
	return sl.Start[:len(time.DateOnly)]
}

func (s *Script) book(c call) map[string]any {
	slotID := c.str("slotId")
	var slot *Slot
	for i := range s.slots {
		if s.slots[i].ID == slotID {
			slot = &s.slots[i]
			break
		}
	}
	if slot == nil || s.taken()[slotID] || s.blocked[dayOf(*slot)] {
		return fail("el turno ya no está disponible")
	}
	var u UserInfo
	_ = json.Unmarshal(c.fields["userInfo"], &u)
	if u.DNI == "" {
		return fail("falta el DNI")
	}

	s.nextID++
	a := Appointment{EventID: "ev-" + strconv.Itoa(s.nextID), SlotID: slotID, Start: slot.Start, UserInfo: u}
	s.appointments[a.EventID] = a
	s.users[u.DNI] = u
	return ok(map[string]any{"eventId": a.EventID})
}

func (s *Script) sortedAppointments() []Appointment {
	out := make([]Appointment, 0, len(s.appointments))
	for _, a := range s.appointments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (s *Script) register(role string, data map[string]any) map[string]any {
	email, _ := data["email"].(string)
	password, _ := data["password"].(string)
	if email == "" || password == "" {
		return fail("email y contraseña son obligatorios")
	}
	if _, exists := s.accounts[role][email]; exists {
		return fail(fmt.Sprintf("%s ya registrado", email))
	}
	profile := make(map[string]any, len(data))
	for k, v := range data {
		if k != "password" {
			profile[k] = v
		}
	}
	s.accounts[role][email] = account{data: profile, password: password}
	return ok(nil)
}

func (s *Script) login(role string, creds map[string]any) map[string]any {
	email, _ := creds["email"].(string)
	password, _ := creds["password"].(string)
	acc, exists := s.accounts[role][email]
	if !exists || acc.password != password {
		return fail("credenciales inválidas")
	}
	return ok(map[string]any{"profile": acc.data})
}
