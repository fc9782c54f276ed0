//go:build unix

package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"ioreactor"
)

var config *ioreactor.Config
var listenAddress string

func init() {
	configFilePath := flag.String("c", "cmd/config.toml", "path to configuration file.")
	flag.StringVar(&listenAddress, "l", "127.0.0.1:7000", "listening address.")
	flag.Parse()
	var err error
	config, err = ioreactor.LoadConfig(*configFilePath)
	if err != nil {
		log.Fatal().Msgf("can't load config: %+v", err)
	}
	initLog(config)
}

func initLog(config *ioreactor.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := config.Global.Level()
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

type channel string

func (c channel) Channel() ioreactor.Target {
	return ioreactor.Target(c)
}

const (
	listenerChannel channel = "listener"
	connChannel     channel = "conn"
)

// echoServer handles connection events, acceptor handles the listener.
type echoServer struct {
	poller  ioreactor.Poller
	socket  ioreactor.SocketConfig
	pending map[ioreactor.FD][]byte
	buffer  []byte
}

type acceptor struct {
	server   *echoServer
	listener ioreactor.FD
}

func (a *acceptor) ReadEvent(ioreactor.Descriptor) error {
	a.server.accept(a.listener)
	return nil
}

func (a *acceptor) WriteEvent(ioreactor.Descriptor) error { return nil }

func (a *acceptor) ErrorEvent(_ ioreactor.Descriptor, cause error) error {
	log.Error().Msgf("listener error: %v", cause)
	return nil
}

func (a *acceptor) CloseEvent(ioreactor.Descriptor) error {
	log.Error().Msg("listener closed")
	return nil
}

func descriptorFD(d ioreactor.Descriptor) ioreactor.FD {
	return ioreactor.FD(d.Fd())
}

func (s *echoServer) ReadEvent(d ioreactor.Descriptor) error {
	return s.read(descriptorFD(d))
}

func (s *echoServer) WriteEvent(d ioreactor.Descriptor) error {
	return s.flush(descriptorFD(d))
}

func (s *echoServer) ErrorEvent(d ioreactor.Descriptor, cause error) error {
	log.Warn().Msgf("[%d] connection error: %v", d.Fd(), cause)
	return nil
}

func (s *echoServer) CloseEvent(d ioreactor.Descriptor) error {
	s.close(descriptorFD(d))
	return nil
}

func (s *echoServer) accept(listener ioreactor.FD) {
	for {
		nfd, _, err := unix.Accept(int(listener))
		if err != nil {
			if !errors.Is(err, unix.EAGAIN) {
				log.Warn().Msgf("accept failed: %v", err)
			}
			return
		}
		unix.CloseOnExec(nfd)
		if err := ioreactor.ApplySocketOptions(nfd, s.socket); err != nil {
			log.Error().Msgf("[%d] can't apply socket options: %v", nfd, err)
			_ = unix.Close(nfd)
			continue
		}
		if err := s.poller.AddReader(connChannel, ioreactor.FD(nfd)); err != nil {
			log.Error().Msgf("[%d] can't register connection: %v", nfd, err)
			_ = unix.Close(nfd)
			continue
		}
		log.Debug().Msgf("[%d] accepted", nfd)
	}
}

func (s *echoServer) read(fd ioreactor.FD) error {
	n, err := unix.Read(int(fd), s.buffer)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil
		}
		return err
	}
	if n == 0 {
		s.close(fd)
		return nil
	}
	s.pending[fd] = append(s.pending[fd], s.buffer[:n]...)
	return s.flush(fd)
}

func (s *echoServer) flush(fd ioreactor.FD) error {
	data := s.pending[fd]
	if len(data) > 0 {
		n, err := unix.Write(int(fd), data)
		if err != nil && !errors.Is(err, unix.EAGAIN) {
			return err
		}
		if n > 0 {
			data = data[n:]
		}
	}
	if len(data) == 0 {
		delete(s.pending, fd)
		if s.poller.IsWriting(fd) {
			return s.poller.RemoveWriter(fd)
		}
		return nil
	}
	s.pending[fd] = data
	return s.poller.AddWriter(connChannel, fd)
}

func (s *echoServer) close(fd ioreactor.FD) {
	s.poller.Discard(fd)
	delete(s.pending, fd)
	if err := unix.Close(int(fd)); err != nil {
		log.Debug().Msgf("[%d] close: %v", fd, err)
	}
	log.Debug().Msgf("[%d] closed", fd)
}

func listen(address string) (ioreactor.FD, error) {
	addr, err := net.ResolveTCPAddr("tcp4", address)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, os.NewSyscallError("setsockopt", err)
	}
	sa := &unix.SockaddrInet4{Port: addr.Port}
	if ip := addr.IP.To4(); ip != nil {
		copy(sa.Addr[:], ip)
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return -1, os.NewSyscallError("listen", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, os.NewSyscallError("setnonblock", err)
	}
	return ioreactor.FD(fd), nil
}

func main() {
	log.Info().Msg("starting echo server...")
	if err := ioreactor.RaiseOpenFilesLimit(config.Global.MaxOpenFiles); err != nil {
		log.Error().Msgf("error occur while raising limit of open files: %+v", err)
	}

	opts, err := config.Options()
	if err != nil {
		log.Fatal().Msgf("invalid reactor options: %+v", err)
	}
	listener, err := listen(listenAddress)
	if err != nil {
		log.Fatal().Msgf("can't listen on %s: %+v", listenAddress, err)
	}
	defer unix.Close(int(listener))

	server := &echoServer{
		socket:  config.Socket,
		pending: make(map[ioreactor.FD][]byte),
		buffer:  make([]byte, 16*1024),
	}
	router := ioreactor.NewEventRouter()
	router.Handle(listenerChannel.Channel(), &acceptor{server: server, listener: listener})
	router.Handle(connChannel.Channel(), server)
	poller, err := ioreactor.New(router, opts)
	if err != nil {
		log.Fatal().Msgf("can't open %s poller: %+v", opts.Backend, err)
	}
	defer poller.Close()
	server.poller = poller
	if err := poller.AddReader(listenerChannel, listener); err != nil {
		log.Fatal().Msgf("can't register listener: %+v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	loop := ioreactor.NewLoop(config.LoopConfig(), poller)
	log.Info().Msgf("listening on %s with %s backend", listenAddress, poller.Backend())
	if err := loop.Run(ctx); err != nil {
		log.Error().Msgf("event loop failed: %+v", err)
	}
	log.Info().Msgf("stats: %+v", poller.Stats().Snapshot())
}
