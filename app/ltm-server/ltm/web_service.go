package ltm

import (
	"context"
	"encoding/json"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

//defaultHttpHandler simple default http handler for default route
type defaultHttpHandler struct {
}

//ServeHTTP implements defaultHttpHandler http.Handler interface
func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

//networkHandler serves one network's LED payloads and inspection endpoints
type networkHandler struct {
	log     *logger.Logger
	network *Network
}

//registerNetworkRoutes mounts a network's endpoints under its url prefix
func registerNetworkRoutes(log *logger.Logger, router *mux.Router, network *Network) {
	handler := &networkHandler{log: log, network: network}
	sub := router.PathPrefix(network.MountPath()).Subrouter()
	for _, api := range network.ledAPIs() {
		sub.HandleFunc(api.URL, handler.serveOutput(api))
	}
	sub.HandleFunc("/status", handler.serveStatus)
	sub.HandleFunc("/api/vehicles", handler.serveVehicles)
	sub.HandleFunc("/api/vehicles/trains", handler.serveTrains)
	sub.HandleFunc("/api/trackedtrains", handler.serveTrackedTrains)
	sub.HandleFunc("/api/stops", handler.serveStops)
}

//serveOutput serves the latest LED payload of one board revision
func (h *networkHandler) serveOutput(api *LEDRailsAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		output := api.Output()
		if output == nil {
			h.serveUnavailable(w)
			return
		}
		h.writeJSON(w, output)
	}
}

func (h *networkHandler) serveStatus(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, h.network.status())
}

func (h *networkHandler) serveVehicles(w http.ResponseWriter, _ *http.Request) {
	if !h.requireTicked(w) {
		return
	}
	h.writeJSON(w, h.network.vehicles())
}

func (h *networkHandler) serveTrains(w http.ResponseWriter, _ *http.Request) {
	if !h.requireTicked(w) {
		return
	}
	h.writeJSON(w, h.network.trainEntities())
}

func (h *networkHandler) serveTrackedTrains(w http.ResponseWriter, _ *http.Request) {
	if !h.requireTicked(w) {
		return
	}
	h.writeJSON(w, h.network.trackedTrains())
}

func (h *networkHandler) serveStops(w http.ResponseWriter, _ *http.Request) {
	stopsMap := h.network.stopsMap()
	if stopsMap == nil {
		http.Error(w, "no stops configured for this network", http.StatusNotFound)
		return
	}
	h.writeJSON(w, stopsMap)
}

//requireTicked answers 503 and returns false while the network has not
//completed an update cycle yet
func (h *networkHandler) requireTicked(w http.ResponseWriter) bool {
	if ticked, _, _ := h.network.ready(); ticked {
		return true
	}
	h.serveUnavailable(w)
	return false
}

//serveUnavailable writes the 503 body with the reason no data is available
//and the last attempt time when there was one
func (h *networkHandler) serveUnavailable(w http.ResponseWriter) {
	_, reason, lastAttempt := h.network.ready()
	body := map[string]interface{}{
		"status": "unavailable",
		"reason": reason,
	}
	if !lastAttempt.IsZero() {
		body["lastAttempt"] = lastAttempt.Unix()
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		h.log.Printf("error marshaling unavailable response, error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	if _, err = w.Write(jsonData); err != nil {
		h.log.Printf("error writing unavailable response, error:%v\n", err)
	}
}

//writeJSON marshals body and writes it with a json content type
func (h *networkHandler) writeJSON(w http.ResponseWriter, body interface{}) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		h.log.Printf("error marshaling json response, error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(jsonData); err != nil {
		h.log.Printf("error writing json response, error:%v\n", err)
	}
}

//createServer creates the configured http.Server serving every network
func createServer(log *logger.Logger, networks []*Network, httpPort int) *http.Server {
	router := mux.NewRouter()
	router.Handle("/", &defaultHttpHandler{})
	for _, network := range networks {
		registerNetworkRoutes(log, router, network)
	}
	srv := &http.Server{
		Addr: strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      router,
	}
	return srv
}

//runWebService starts up the web service, and terminates on shutdown signal
func runWebService(log *logger.Logger,
	wg *sync.WaitGroup,
	networks []*Network,
	httpPort int,
	shutdownSignal chan bool) {

	wg.Add(1)
	defer wg.Done()
	srv := createServer(log, networks, httpPort)
	log.Printf("Starting server on port %d", httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended. %s", err)
		}
	}()

	select {
	case <-shutdownSignal:
		log.Printf("ending webservice on shutdown signal")
		shutdownCtx, serverCancelFunc := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
		defer serverCancelFunc()
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			log.Printf("error shutting down webservice, error:%s", err)
		}
	}
}
