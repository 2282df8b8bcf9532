package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"

	"kanbanServer/backend/config"
	"kanbanServer/backend/internal/authservice"
	"kanbanServer/backend/internal/user"
)

func main() {
	cfg, err := config.Load("authConfig", os.Getenv("AUTH_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	}

	db, err := sql.Open("mysql", cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("open mysql: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping mysql: %v", err)
	}
	if _, err := db.ExecContext(ctx, user.Schema); err != nil {
		log.Fatalf("create users table: %v", err)
	}

	h := authservice.NewHandler(user.NewMySQLRepository(db), authservice.NewTokens(cfg.Auth.Secret))

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	auth := r.Group("/v1/auth")
	h.Register(auth)
	auth.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "OK"})
	})

	log.WithField("port", cfg.Running.Port).Info("auth service starting")
	if err := r.Run(fmt.Sprintf(":%d", cfg.Running.Port)); err != nil {
		log.Fatalf("run: %v", err)
	}
}
