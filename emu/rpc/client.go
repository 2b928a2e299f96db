package rpc

import (
	"fmt"
	"net/rpc"
	"strconv"
	"time"
)

type Client struct {
	client *rpc.Client
}

func NewClient(port int) (*Client, error) {
	var (
		client *rpc.Client
		err    error
	)
	const maxretries = 5
	for i := range maxretries {
		if client, err = rpc.DialHTTP("tcp", ":"+strconv.Itoa(port)); err == nil {
			break
		}
		modRPC.WarnZ("dial tcp failed").Error("err", err).Int("retry", i).End()
		time.Sleep(250 * time.Millisecond)
	}

	if client == nil {
		return nil, fmt.Errorf("dial failed max retries: %v", err)
	}

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	modRPC.DebugZ("closing rpc client").End()
	return c.client.Close()
}

func (c *Client) Stop() error               { return call(c.client, "Stop", &struct{}{}) }
func (c *Client) Reinit() error             { return call(c.client, "Reinit", &struct{}{}) }
func (c *Client) SetMode(name string) error { return call(c.client, "SetMode", name) }
func (c *Client) Poke(args PokeArgs) error  { return call(c.client, "Poke", args) }
func (c *Client) Status() (Status, error)   { return request[Status](c.client, "Status", &struct{}{}) }

func call(client *rpc.Client, method string, args any) error {
	_, err := request[struct{}](client, method, args)
	return err
}

func request[T any](client *rpc.Client, method string, args any) (T, error) {
	var reply T
	if err := client.Call(serviceName+"."+method, args, &reply); err != nil {
		return reply, fmt.Errorf("rpc %s: %w", method, err)
	}
	return reply, nil
}
