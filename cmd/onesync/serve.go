// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/onesync/codec"
	"github.com/sage-x-project/onesync/crypto"
	"github.com/sage-x-project/onesync/health"
	"github.com/sage-x-project/onesync/internal/localdir"
	"github.com/sage-x-project/onesync/internal/logger"
	"github.com/sage-x-project/onesync/internal/metrics"
	"github.com/sage-x-project/onesync/model"
	"github.com/sage-x-project/onesync/pkg/version"
	"github.com/sage-x-project/onesync/protocol"
	"github.com/sage-x-project/onesync/route"
	"github.com/sage-x-project/onesync/store"
	"github.com/sage-x-project/onesync/transport"
	ws "github.com/sage-x-project/onesync/transport/websocket"
)

var (
	serveListen       string
	servePersonEmail  string
	serveInstanceName string
	serveAdminAddr    string
	serveInviteTTL    time.Duration
	serveInviteSecret string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run this instance: accept connections and drive pairing/auth and channel sync",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "address to accept direct incoming websocket connections on (empty disables)")
	serveCmd.Flags().StringVar(&servePersonEmail, "person-email", "local@onesync", "email identifying this instance's Person, on first run only")
	serveCmd.Flags().StringVar(&serveInstanceName, "instance-name", "onesync-instance", "this instance's Instance name, on first run only")
	serveCmd.Flags().StringVar(&serveAdminAddr, "admin-addr", "127.0.0.1:8181", "address the admin control endpoint (/invite) listens on")
	serveCmd.Flags().DurationVar(&serveInviteTTL, "invite-ttl", 60*time.Second, "how long an /invite-issued pairing token stays valid")
	serveCmd.Flags().StringVar(&serveInviteSecret, "invite-secret", "", "HMAC secret invitation tokens are signed with (defaults to this instance's public sign key, hex-encoded)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewDefaultLogger()
	log.Info("starting onesync serve", logger.String("version", version.Short()), logger.String("environment", cfg.Environment))

	id, err := loadOrCreateIdentity(identityPath, servePersonEmail, serveInstanceName)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	log.Info("instance identity", logger.String("personId", id.PersonID.String()), logger.String("routingKey", id.Encrypt.PublicHex()))

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	dir := localdir.New(st)
	if err := dir.LoadFromStore(ctx); err != nil {
		return fmt.Errorf("load directory: %w", err)
	}
	dir.AddSignKey(id.Sign.PublicHex())
	dir.SetLocalIdentity(id.PersonID, codec.IdentityObject{
		PersonID: id.PersonID.String(),
		CommunicationEndpoints: []codec.IdentityEndpoint{{
			Type:          "OneInstanceEndpoint",
			URL:           serveListen,
			PublicKey:     id.Encrypt.PublicHex(),
			PublicSignKey: id.Sign.PublicHex(),
		}},
	})

	secret := serveInviteSecret
	if secret == "" {
		secret = id.Sign.PublicHex()
	}
	invitations := protocol.NewInvitations([]byte(secret))
	chum := &channelChum{log: log}
	engine := protocol.NewEngine(id.PersonID, dir, invitations, chum)
	engine.AllowSetAuthGroup = cfg.Connections.AllowSetAuthGroup

	routes := route.NewManager(engine, cfg.Connections.ReconnectDelay, nil)
	routes.OnConnection().Listen(func(ev route.ConnectionEvent) { go handleConnection(ctx, log, dir, engine, ev) })
	routes.OnConnectionViaCatchAll().Listen(func(ev route.ConnectionEvent) { go handleConnection(ctx, log, dir, engine, ev) })

	var httpServers []*http.Server
	if cfg.Connections.AcceptIncomingConnections && serveListen != "" {
		listener := ws.NewListener(nil)
		srv := &http.Server{Addr: serveListen, Handler: listener.Handler()}
		routes.AddCatchAllIncomingWSDirect(id.route(), acceptorFor(listener), "direct")
		routes.EnableRoutes()
		httpServers = append(httpServers, srv)
		go func() {
			log.Info("accepting direct websocket connections", logger.String("addr", serveListen))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("direct websocket listener stopped", logger.Error(err))
			}
		}()
	}

	checker := health.NewHealthChecker(5 * time.Second)
	checker.SetLogger(log)
	checker.RegisterCheck("store", health.StoreHealthCheck(storePingCheck(st)))

	if cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc(healthPath(cfg.Health.Path), func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, checker.GetSystemHealth(r.Context()))
		})
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Health.Port), Handler: mux}
		httpServers = append(httpServers, srv)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("health server stopped", logger.Error(err))
			}
		}()
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(fmt.Sprintf(":%d", cfg.Metrics.Port)); err != nil {
				log.Error("metrics server stopped", logger.Error(err))
			}
		}()
	}

	adminSrv := startAdminServer(serveAdminAddr, log, invitations, id.PersonID, serveInviteTTL)
	httpServers = append(httpServers, adminSrv)

	<-ctx.Done()
	log.Info("shutting down")
	routes.Shutdown()
	for _, srv := range httpServers {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}
	return nil
}

// acceptorFor adapts a websocket Listener into route.Acceptor: enabling the
// route installs the listener's accept callback, disabling it tears down
// every pipe the listener is tracking. The *http.Server carrying the
// listener's Handler is started/stopped independently in runServe, since
// route.Acceptor only controls the upgrade callback, not the socket itself.
func acceptorFor(listener *ws.Listener) route.Acceptor {
	return func(onAccept func(transport.Pipe)) (func(), error) {
		listener.Accept = func(p *ws.Pipe) { onAccept(p) }
		return func() { listener.CloseAll("route disabled") }, nil
	}
}

// handleConnection drives one already-handshaken Connection through
// protocol selection. Known peers are offered chum_one_time; an unknown
// key can still complete pairing, since runPairing only needs
// remotePersonID for the event it emits on success, not for correctness
// (§4.3's pairing steps resolve the peer's person id from the exchanged
// identity object itself).
func handleConnection(ctx context.Context, log logger.Logger, dir *localdir.Directory, engine *protocol.Engine, ev route.ConnectionEvent) {
	personID, known := dir.PersonForKey(ev.RemoteKey)
	protocolName := codec.ProtocolChumOneTime
	if !known {
		protocolName = codec.ProtocolPairing
	}

	opts := protocol.SessionOptions{Protocol: codec.NewStartProtocol(protocolName)}
	if err := engine.RunSession(ctx, ev.Conn, personID, ev.InitiatedLocally, opts); err != nil {
		log.Error("session ended", logger.Error(err), logger.String("remoteKey", ev.RemoteKey))
	}
}

func storePingCheck(st store.Store) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := st.Exists(ctx, model.Hash{})
		return err
	}
}

func healthPath(p string) string {
	if p == "" {
		return "/healthz"
	}
	return p
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// startAdminServer exposes the operator-facing control endpoints a
// standalone `invite` CLI invocation talks to: issuing a pairing
// invitation requires the same in-memory Invitations.pending map the
// eventual Redeem call checks against (§4.3), so issuance has to happen
// inside this running process rather than a separate one-shot command.
func startAdminServer(addr string, log logger.Logger, invitations *protocol.Invitations, localPersonID model.Hash, ttl time.Duration) *http.Server {
	api := crypto.New()
	mux := http.NewServeMux()
	mux.HandleFunc("/invite", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		ai, err := invitations.Issue(api, localPersonID, ttl)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"token": ai.Token, "expiresAt": ai.ExpiresAt.Format(time.RFC3339)})
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Info("admin endpoint listening", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin server stopped", logger.Error(err))
		}
	}()
	return srv
}
