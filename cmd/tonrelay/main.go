// tonrelay 把 TON 覆盖网络中的外部消息实时推送给 WebSocket 订阅者
package main

func main() {
	Execute()
}
